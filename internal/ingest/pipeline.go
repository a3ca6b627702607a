package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callscribe/internal/ai"
	"callscribe/internal/audio"
	"callscribe/internal/model"
	"callscribe/internal/repository"
	"callscribe/internal/storage"
	"callscribe/internal/stt"
)

const maxUploadBytes = 50 << 20 // 50 MiB

var allowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".mpeg": true,
}

// Pipeline orchestrates a single upload: validate, hash, dedup-check,
// normalize, persist, then transcribe and analyze. Validation, dedup and
// normalization failures abort before anything is persisted; once the stub
// record exists, AI-stage failures degrade into the record instead of
// failing the upload.
type Pipeline struct {
	store       repository.CallStore
	files       *storage.AudioStore
	normalizer  audio.Normalizer
	transcriber stt.Transcriber
	analyzer    ai.Analyzer
	log         *logrus.Entry
}

func NewPipeline(
	store repository.CallStore,
	files *storage.AudioStore,
	normalizer audio.Normalizer,
	transcriber stt.Transcriber,
	analyzer ai.Analyzer,
	log *logrus.Entry,
) *Pipeline {
	return &Pipeline{
		store:       store,
		files:       files,
		normalizer:  normalizer,
		transcriber: transcriber,
		analyzer:    analyzer,
		log:         log,
	}
}

// Process runs the full ingestion pipeline synchronously and returns the
// accepted upload response once the record exists. Transcription and
// analysis outcomes are only visible by fetching the record afterwards.
func (p *Pipeline) Process(ctx context.Context, filename string, data []byte) (*model.UploadResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, &ValidationError{
			Reason: "type",
			Detail: fmt.Sprintf("Invalid file type. Only WAV and MP3 files are allowed. Got: %s", ext),
		}
	}
	if len(data) == 0 {
		return nil, &ValidationError{Reason: "empty", Detail: "File is empty"}
	}
	if len(data) > maxUploadBytes {
		return nil, &ValidationError{Reason: "size", Detail: "File size exceeds 50MB limit"}
	}

	// Hash the original bytes before normalizing. A WAV and its MP3
	// re-encoding are deliberately distinct uploads.
	hash := Fingerprint(data)

	existing, err := p.store.FindByHash(ctx, hash)
	if err == nil {
		return nil, &DuplicateError{Filename: existing.Filename, UploadedAt: existing.UploadTimestamp}
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}

	stored, storedExt, err := p.normalizer.Normalize(ctx, data, ext)
	if err != nil {
		return nil, err
	}
	storedName := filename
	if storedExt != ext {
		storedName = strings.TrimSuffix(filename, filepath.Ext(filename)) + storedExt
	}

	id := uuid.New().String()
	path, err := p.files.Save(id, storedExt, stored)
	if err != nil {
		return nil, err
	}

	rec := &model.CallRecord{
		ID:              id,
		Filename:        storedName,
		UploadTimestamp: time.Now().UTC(),
		Transcript:      "",
		Summary:         "",
		Tags:            []string{},
		FileHash:        hash,
	}
	if err := p.store.Insert(ctx, rec); err != nil {
		os.Remove(path)
		if errors.Is(err, repository.ErrDuplicateHash) {
			// Lost the race between dedup check and insert; the unique
			// constraint is the arbiter.
			if winner, ferr := p.store.FindByHash(ctx, hash); ferr == nil {
				return nil, &DuplicateError{Filename: winner.Filename, UploadedAt: winner.UploadTimestamp}
			}
			return nil, &DuplicateError{Filename: filename, UploadedAt: time.Now().UTC()}
		}
		return nil, err
	}

	p.enrich(ctx, id, path)

	return &model.UploadResponse{ID: id, Message: "File uploaded and processing started"}, nil
}

// enrich runs the transcription and analysis stage. It never propagates a
// failure: every exit commits some transcript/summary/tags triple.
func (p *Pipeline) enrich(ctx context.Context, id, audioPath string) {
	var transcript string

	defer func() {
		if r := recover(); r != nil {
			summary := fmt.Sprintf("Error processing audio: %v", r)
			tags := []string{"processing error"}
			if err := p.store.UpdateAnalysis(ctx, id, transcript, summary, tags); err != nil {
				p.log.WithFields(logrus.Fields{"call_id": id, "error": err.Error()}).
					Error("failed to record processing error")
			}
		}
	}()

	var summary string
	var tags []string

	text, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil || text == "" {
		if err != nil {
			p.log.WithFields(logrus.Fields{"call_id": id, "error": err.Error()}).
				Warn("transcription failed")
		}
		summary = "Transcription failed. Please try again."
		tags = []string{"transcription failed"}
	} else {
		transcript = text
		result := p.analyzer.Analyze(ctx, transcript)
		summary = result.Summary
		tags = result.Tags
	}

	if err := p.store.UpdateAnalysis(ctx, id, transcript, summary, tags); err != nil {
		p.log.WithFields(logrus.Fields{"call_id": id, "error": err.Error()}).
			Error("failed to commit analysis result")
	}
}
