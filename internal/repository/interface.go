package repository

import (
	"context"
	"errors"

	"callscribe/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("call record not found")

	// ErrDuplicateHash is returned by Insert when a record with the same
	// file hash already exists. The unique constraint on file_hash is the
	// arbiter for concurrent uploads of identical content.
	ErrDuplicateHash = errors.New("file hash already exists")
)

// CallStore defines the interface for call record data access
type CallStore interface {
	// Insert creates a new call record; fails with ErrDuplicateHash if a
	// record with the same file hash exists.
	Insert(ctx context.Context, rec *model.CallRecord) error

	// FindByHash retrieves a call record by its content hash.
	FindByHash(ctx context.Context, hash string) (*model.CallRecord, error)

	// FindByID retrieves a call record by ID.
	FindByID(ctx context.Context, id string) (*model.CallRecord, error)

	// UpdateAnalysis updates only transcript, summary and tags of a record.
	UpdateAnalysis(ctx context.Context, id, transcript, summary string, tags []string) error

	// List returns records, optionally filtered by exact tag, ordered by
	// upload timestamp ("oldest" ascending, anything else descending).
	List(ctx context.Context, tag, sort string) ([]model.CallRecord, error)

	// TagBlobs returns the serialized tag column of every record.
	TagBlobs(ctx context.Context) ([]string, error)
}
