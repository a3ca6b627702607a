package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// NormalizationError reports that input bytes could not be decoded or
// re-encoded, carrying the underlying tool's message.
type NormalizationError struct {
	Detail string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("failed to convert WAV to MP3: %s", e.Detail)
}

// Normalizer converts uploaded audio to the canonical stored encoding.
type Normalizer interface {
	// Normalize returns the stored bytes and extension for an upload.
	// Callers must hash the original bytes before normalizing; the stored
	// hash always reflects the uploaded content, not the converted form.
	Normalize(ctx context.Context, data []byte, ext string) ([]byte, string, error)
}

// FFmpegNormalizer re-encodes WAV input to MP3 at a fixed bitrate by
// shelling out to ffmpeg. MP3 and MPEG input passes through untouched.
type FFmpegNormalizer struct {
	Binary  string // defaults to "ffmpeg"
	Bitrate string // defaults to "96k"
}

func NewFFmpegNormalizer() *FFmpegNormalizer {
	return &FFmpegNormalizer{Binary: "ffmpeg", Bitrate: "96k"}
}

func (n *FFmpegNormalizer) Normalize(ctx context.Context, data []byte, ext string) ([]byte, string, error) {
	if strings.ToLower(ext) != ".wav" {
		return data, ext, nil
	}

	tmp, err := os.MkdirTemp("", "callscribe-normalize-")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	in := filepath.Join(tmp, "in.wav")
	out := filepath.Join(tmp, "out.mp3")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, "", fmt.Errorf("failed to stage input: %w", err)
	}

	bin := n.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	bitrate := n.Bitrate
	if bitrate == "" {
		bitrate = "96k"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-y", "-f", "wav", "-i", in,
		"-b:a", bitrate,
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, "", &NormalizationError{Detail: detail}
	}

	converted, err := os.ReadFile(out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read converted audio: %w", err)
	}
	return converted, ".mp3", nil
}
