package stt

import "context"

// Transcriber defines the interface for speech-to-text engines.
//
// A failed transcription is a first-class outcome, not a fatal one: callers
// must treat an error (or empty transcript) as "no transcript produced" and
// degrade accordingly. Implementations must not retry internally.
type Transcriber interface {
	// Transcribe transcribes an audio file and returns the transcript text.
	Transcribe(ctx context.Context, audioPath string) (string, error)

	// Name returns the name of the engine (e.g., "whisper")
	Name() string
}
