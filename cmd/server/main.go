package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sashabaranov/go-openai"

	"callscribe/internal/ai"
	"callscribe/internal/api"
	"callscribe/internal/audio"
	"callscribe/internal/config"
	"callscribe/internal/ingest"
	"callscribe/internal/logger"
	"callscribe/internal/query"
	"callscribe/internal/repository"
	"callscribe/internal/storage"
	"callscribe/internal/stt"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	log := logger.New()

	// Load configuration. A missing OpenAI key fails here, not on the
	// first upload.
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open call store")
	}

	files, err := storage.NewAudioStore(cfg.UploadDir)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare upload directory")
	}

	// One OpenAI client backs both the transcription and analysis engines.
	client := openai.NewClient(cfg.OpenAIKey)
	transcriber := stt.NewWhisperTranscriber(client, cfg.STTModel)
	analyzer := ai.NewOpenAIAnalyzer(client, cfg.LLMModel, log.WithComponent("ai"))

	pipeline := ingest.NewPipeline(
		store,
		files,
		audio.NewFFmpegNormalizer(),
		transcriber,
		analyzer,
		log.WithComponent("ingest"),
	)
	queries := query.NewService(store, files)

	r := gin.Default()
	r.Use(corsMiddleware())

	api.RegisterRoutes(r, api.NewHandlers(pipeline, queries, log.WithComponent("api")))

	log.WithField("port", cfg.Port).Info("callscribe backend running")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
}

// corsMiddleware adds CORS headers for the web client
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
