package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port        string
	DatabaseURL string
	UploadDir   string
	OpenAIKey   string
	STTModel    string
	LLMModel    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "database.db"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		STTModel:    getEnv("STT_MODEL", "whisper-1"),
		LLMModel:    getEnv("LLM_MODEL", "gpt-3.5-turbo"),
	}

	// Both AI clients are constructed from this key at startup, so a missing
	// key aborts boot instead of surfacing on the first upload.
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required. Please set it as environment variable:\n  Windows PowerShell: $env:OPENAI_API_KEY=\"your_key\"\n  Windows CMD: set OPENAI_API_KEY=your_key\n  Linux/Mac: export OPENAI_API_KEY=\"your_key\"")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
