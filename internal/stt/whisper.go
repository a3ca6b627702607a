package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber implements STT using the OpenAI Whisper API
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a Whisper transcriber around an existing
// OpenAI client. Model defaults to whisper-1.
func NewWhisperTranscriber(client *openai.Client, model string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

// Name returns the engine name
func (t *WhisperTranscriber) Name() string {
	return "whisper"
}

// Transcribe sends the audio file to the Whisper API and returns the
// transcript text. Any transport, auth or decode failure comes back as an
// error for the caller to absorb; there is no retry here.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
