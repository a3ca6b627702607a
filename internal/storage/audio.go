package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AudioStore keeps one audio file per call, named by record id plus the
// post-normalization extension, inside a dedicated upload directory.
type AudioStore struct {
	dir string
}

func NewAudioStore(dir string) (*AudioStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &AudioStore{dir: dir}, nil
}

func (s *AudioStore) Dir() string { return s.dir }

// Save writes the audio bytes for a call. The file is written once at
// ingestion time and never rewritten.
func (s *AudioStore) Save(id, ext string, data []byte) (string, error) {
	dst := filepath.Join(s.dir, id+ext)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save audio file: %w", err)
	}
	return dst, nil
}

// Resolve returns the on-disk path and media type for a call's audio. When
// the stored filename carries no extension, known extensions are probed in
// order. ok is false when no file exists on disk.
func (s *AudioStore) Resolve(id, filename string) (path, mediaType string, ok bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		for _, probe := range []string{".wav", ".mp3"} {
			candidate := filepath.Join(s.dir, id+probe)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, mediaTypeFor(probe), true
			}
		}
		return "", "", false
	}

	path = filepath.Join(s.dir, id+ext)
	if _, err := os.Stat(path); err != nil {
		return "", "", false
	}
	return path, mediaTypeFor(ext), true
}

func mediaTypeFor(ext string) string {
	// .mpeg is an MPEG container, not WAV.
	if ext == ".mp3" || ext == ".mpeg" {
		return "audio/mpeg"
	}
	return "audio/wav"
}
