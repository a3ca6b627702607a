package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"callscribe/internal/ai"
	"callscribe/internal/audio"
	"callscribe/internal/model"
	"callscribe/internal/repository"
	"callscribe/internal/storage"
)

type passthroughNormalizer struct{}

func (passthroughNormalizer) Normalize(_ context.Context, data []byte, ext string) ([]byte, string, error) {
	return data, ext, nil
}

type convertingNormalizer struct {
	out []byte
}

func (n convertingNormalizer) Normalize(_ context.Context, data []byte, ext string) ([]byte, string, error) {
	if strings.ToLower(ext) == ".wav" {
		return n.out, ".mp3", nil
	}
	return data, ext, nil
}

type failingNormalizer struct {
	err error
}

func (n failingNormalizer) Normalize(_ context.Context, _ []byte, _ string) ([]byte, string, error) {
	return nil, "", n.err
}

type stubTranscriber struct {
	text  string
	err   error
	calls int
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubTranscriber) Name() string { return "stub" }

type stubAnalyzer struct {
	result ai.Analysis
	panics bool
	calls  int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string) ai.Analysis {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.result
}

type pipelineEnv struct {
	pipeline *Pipeline
	store    repository.CallStore
	files    *storage.AudioStore
	dir      string
}

func newPipelineEnv(t *testing.T, tr *stubTranscriber, an *stubAnalyzer, norm audio.Normalizer) *pipelineEnv {
	t.Helper()

	tmp := t.TempDir()
	store, err := repository.Open(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	uploadDir := filepath.Join(tmp, "uploads")
	files, err := storage.NewAudioStore(uploadDir)
	if err != nil {
		t.Fatal(err)
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	return &pipelineEnv{
		pipeline: NewPipeline(store, files, norm, tr, an, logrus.NewEntry(quiet)),
		store:    store,
		files:    files,
		dir:      uploadDir,
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestProcess_RejectsInvalidExtension(t *testing.T) {
	env := newPipelineEnv(t, &stubTranscriber{}, &stubAnalyzer{}, passthroughNormalizer{})

	for _, name := range []string{"notes.txt", "call.ogg", "call"} {
		_, err := env.pipeline.Process(context.Background(), name, []byte("data"))
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Reason != "type" {
			t.Fatalf("%s: expected type validation error, got %v", name, err)
		}
	}

	// case-insensitive acceptance
	if _, err := env.pipeline.Process(context.Background(), "call.MP3", []byte("data")); err != nil {
		t.Fatalf("uppercase extension rejected: %v", err)
	}
}

func TestProcess_RejectsEmptyAndOversized(t *testing.T) {
	env := newPipelineEnv(t, &stubTranscriber{}, &stubAnalyzer{}, passthroughNormalizer{})

	_, err := env.pipeline.Process(context.Background(), "call.mp3", nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Reason != "empty" {
		t.Fatalf("expected empty validation error, got %v", err)
	}

	_, err = env.pipeline.Process(context.Background(), "call.mp3", make([]byte, maxUploadBytes+1))
	if !errors.As(err, &vErr) || vErr.Reason != "size" {
		t.Fatalf("expected size validation error, got %v", err)
	}

	if recs, _ := env.store.List(context.Background(), "", ""); len(recs) != 0 {
		t.Fatalf("rejections must not create records, got %d", len(recs))
	}
}

func TestProcess_DuplicateContentRejected(t *testing.T) {
	env := newPipelineEnv(t, &stubTranscriber{text: "hi"}, &stubAnalyzer{result: ai.Analysis{Summary: "s", Tags: []string{}}}, passthroughNormalizer{})
	ctx := context.Background()

	content := []byte("identical audio bytes")
	first, err := env.pipeline.Process(ctx, "first.mp3", content)
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.pipeline.Process(ctx, "second.mp3", content)
	var dErr *DuplicateError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dErr.Filename != "first.mp3" {
		t.Fatalf("duplicate error should carry original filename, got %q", dErr.Filename)
	}
	if !strings.Contains(dErr.Error(), "first.mp3") {
		t.Fatalf("detail missing original filename: %q", dErr.Error())
	}

	recs, err := env.store.List(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != first.ID {
		t.Fatalf("expected a single record for %s, got %+v", first.ID, recs)
	}
	if n := countFiles(t, env.dir); n != 1 {
		t.Fatalf("expected a single stored file, got %d", n)
	}
}

// racingStore simulates a concurrent upload of the same content winning
// between the dedup check and the insert: the lookup sees nothing, the
// insert hits the unique constraint, and the follow-up lookup returns the
// winner's record.
type racingStore struct {
	winner  model.CallRecord
	lookups int
}

func (s *racingStore) Insert(_ context.Context, _ *model.CallRecord) error {
	return repository.ErrDuplicateHash
}

func (s *racingStore) FindByHash(_ context.Context, _ string) (*model.CallRecord, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, repository.ErrNotFound
	}
	w := s.winner
	return &w, nil
}

func (s *racingStore) FindByID(_ context.Context, _ string) (*model.CallRecord, error) {
	return nil, repository.ErrNotFound
}

func (s *racingStore) UpdateAnalysis(_ context.Context, _, _, _ string, _ []string) error {
	return nil
}

func (s *racingStore) List(_ context.Context, _, _ string) ([]model.CallRecord, error) {
	return nil, nil
}

func (s *racingStore) TagBlobs(_ context.Context) ([]string, error) {
	return nil, nil
}

func TestProcess_LostInsertRaceRejectedAsDuplicate(t *testing.T) {
	tmp := t.TempDir()
	uploadDir := filepath.Join(tmp, "uploads")
	files, err := storage.NewAudioStore(uploadDir)
	if err != nil {
		t.Fatal(err)
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	winnerTS := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	store := &racingStore{winner: model.CallRecord{
		ID:              "winner-id",
		Filename:        "winner.mp3",
		UploadTimestamp: winnerTS,
	}}
	pipeline := NewPipeline(store, files, passthroughNormalizer{},
		&stubTranscriber{}, &stubAnalyzer{}, logrus.NewEntry(quiet))

	_, err = pipeline.Process(context.Background(), "loser.mp3", []byte("contested content"))
	var dErr *DuplicateError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dErr.Filename != "winner.mp3" {
		t.Fatalf("duplicate error should carry the winner's filename, got %q", dErr.Filename)
	}
	if !dErr.UploadedAt.Equal(winnerTS) {
		t.Fatalf("duplicate error should carry the winner's timestamp, got %v", dErr.UploadedAt)
	}
	if store.lookups != 2 {
		t.Fatalf("expected a follow-up hash lookup after the conflict, got %d", store.lookups)
	}
	// the losing upload's file must not survive
	if n := countFiles(t, uploadDir); n != 0 {
		t.Fatalf("expected the raced file to be removed, found %d", n)
	}
}

func TestProcess_WAVIsStoredAsMP3(t *testing.T) {
	converted := []byte("mp3-encoded-bytes")
	env := newPipelineEnv(t, &stubTranscriber{text: "hi"}, &stubAnalyzer{result: ai.Analysis{Summary: "s", Tags: []string{}}}, convertingNormalizer{out: converted})
	ctx := context.Background()

	resp, err := env.pipeline.Process(ctx, "recording.wav", []byte("RIFF-wav-bytes"))
	if err != nil {
		t.Fatal(err)
	}

	rec, err := env.store.FindByID(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Filename != "recording.mp3" {
		t.Fatalf("expected mp3 filename, got %q", rec.Filename)
	}

	stored, err := os.ReadFile(filepath.Join(env.dir, resp.ID+".mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored, converted) {
		t.Fatalf("stored bytes are not the converted output")
	}

	// dedup key reflects the original upload, not the converted bytes
	if rec.FileHash != Fingerprint([]byte("RIFF-wav-bytes")) {
		t.Fatalf("file hash must cover original bytes")
	}
}

func TestProcess_MP3PassesThroughUnchanged(t *testing.T) {
	env := newPipelineEnv(t, &stubTranscriber{text: "hi"}, &stubAnalyzer{result: ai.Analysis{Summary: "s", Tags: []string{}}}, passthroughNormalizer{})

	payload := []byte("raw mp3 payload")
	resp, err := env.pipeline.Process(context.Background(), "call.mp3", payload)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := os.ReadFile(filepath.Join(env.dir, resp.ID+".mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored, payload) {
		t.Fatalf("mp3 bytes must be stored unchanged")
	}
}

func TestProcess_NormalizationFailureAbortsBeforePersist(t *testing.T) {
	wantErr := errors.New("undecodable wav")
	env := newPipelineEnv(t, &stubTranscriber{}, &stubAnalyzer{}, failingNormalizer{err: wantErr})

	_, err := env.pipeline.Process(context.Background(), "bad.wav", []byte("not really wav"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected normalization error, got %v", err)
	}
	if recs, _ := env.store.List(context.Background(), "", ""); len(recs) != 0 {
		t.Fatalf("no record may exist after normalization failure")
	}
	if n := countFiles(t, env.dir); n != 0 {
		t.Fatalf("no file may exist after normalization failure, got %d", n)
	}
}

func TestProcess_TranscriptionFailureDegrades(t *testing.T) {
	analyzer := &stubAnalyzer{result: ai.Analysis{Summary: "unused", Tags: []string{"x"}}}
	env := newPipelineEnv(t, &stubTranscriber{err: errors.New("quota exceeded")}, analyzer, passthroughNormalizer{})
	ctx := context.Background()

	resp, err := env.pipeline.Process(ctx, "call.mp3", []byte("audio"))
	if err != nil {
		t.Fatalf("upload must still be accepted: %v", err)
	}

	rec, err := env.store.FindByID(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Transcript != "" {
		t.Fatalf("expected empty transcript, got %q", rec.Transcript)
	}
	if rec.Summary != "Transcription failed. Please try again." {
		t.Fatalf("unexpected summary: %q", rec.Summary)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"transcription failed"}) {
		t.Fatalf("unexpected tags: %v", rec.Tags)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analysis must be skipped without a transcript")
	}
}

func TestProcess_EmptyTranscriptDegrades(t *testing.T) {
	analyzer := &stubAnalyzer{}
	env := newPipelineEnv(t, &stubTranscriber{text: ""}, analyzer, passthroughNormalizer{})

	resp, err := env.pipeline.Process(context.Background(), "call.mp3", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := env.store.FindByID(context.Background(), resp.ID)
	if !reflect.DeepEqual(rec.Tags, []string{"transcription failed"}) {
		t.Fatalf("unexpected tags: %v", rec.Tags)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analysis must be skipped for an empty transcript")
	}
}

func TestProcess_SuccessCommitsAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{result: ai.Analysis{Summary: "A sales call.", Tags: []string{"sale completed"}}}
	env := newPipelineEnv(t, &stubTranscriber{text: "we closed the deal"}, analyzer, passthroughNormalizer{})
	ctx := context.Background()

	resp, err := env.pipeline.Process(ctx, "call.mp3", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "File uploaded and processing started" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}

	rec, err := env.store.FindByID(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Transcript != "we closed the deal" || rec.Summary != "A sales call." {
		t.Fatalf("analysis not committed: %+v", rec)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"sale completed"}) {
		t.Fatalf("unexpected tags: %v", rec.Tags)
	}
}

func TestProcess_PanicDuringAnalysisIsRecorded(t *testing.T) {
	env := newPipelineEnv(t, &stubTranscriber{text: "some words"}, &stubAnalyzer{panics: true}, passthroughNormalizer{})
	ctx := context.Background()

	resp, err := env.pipeline.Process(ctx, "call.mp3", []byte("audio"))
	if err != nil {
		t.Fatalf("upload must still be accepted: %v", err)
	}

	rec, err := env.store.FindByID(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Summary != "Error processing audio: boom" {
		t.Fatalf("unexpected summary: %q", rec.Summary)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"processing error"}) {
		t.Fatalf("unexpected tags: %v", rec.Tags)
	}
	// transcript obtained before the failure is preserved
	if rec.Transcript != "some words" {
		t.Fatalf("unexpected transcript: %q", rec.Transcript)
	}
}
