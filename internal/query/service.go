package query

import (
	"context"
	"encoding/json"
	"sort"

	"callscribe/internal/model"
	"callscribe/internal/repository"
	"callscribe/internal/storage"
)

// Service is the read path over the call store and the stored audio files.
type Service struct {
	store repository.CallStore
	files *storage.AudioStore
}

func NewService(store repository.CallStore, files *storage.AudioStore) *Service {
	return &Service{store: store, files: files}
}

// ListCalls returns calls, optionally filtered by an exact tag, sorted
// newest-first unless sort is "oldest".
func (s *Service) ListCalls(ctx context.Context, tag, sortOrder string) (*model.CallsListResponse, error) {
	calls, err := s.store.List(ctx, tag, sortOrder)
	if err != nil {
		return nil, err
	}
	return &model.CallsListResponse{Calls: calls, Total: len(calls)}, nil
}

// ListDistinctTags aggregates tags across all records: case-sensitive,
// deduplicated, alphabetically sorted. Records whose stored tag data does
// not decode are skipped.
func (s *Service) ListDistinctTags(ctx context.Context) ([]string, error) {
	blobs, err := s.store.TagBlobs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, blob := range blobs {
		if blob == "" {
			continue
		}
		var tags []string
		if err := json.Unmarshal([]byte(blob), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			seen[t] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// GetCall returns a single record or repository.ErrNotFound.
func (s *Service) GetCall(ctx context.Context, id string) (*model.CallRecord, error) {
	return s.store.FindByID(ctx, id)
}

// ResolveAudio returns the on-disk path, media type and download filename
// for a call's audio, or repository.ErrNotFound when the record or the file
// is absent.
func (s *Service) ResolveAudio(ctx context.Context, id string) (path, mediaType, filename string, err error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return "", "", "", err
	}
	path, mediaType, ok := s.files.Resolve(rec.ID, rec.Filename)
	if !ok {
		return "", "", "", repository.ErrNotFound
	}
	return path, mediaType, rec.Filename, nil
}
