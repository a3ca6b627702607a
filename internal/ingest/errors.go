package ingest

import (
	"fmt"
	"time"
)

// ValidationError rejects an upload before anything is persisted.
type ValidationError struct {
	Reason string // "type", "empty" or "size"
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// DuplicateError rejects an upload whose content hash matches an existing
// record, carrying the original upload's filename and timestamp.
type DuplicateError struct {
	Filename   string
	UploadedAt time.Time
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("Duplicate file detected. This file was already uploaded as '%s' on %s",
		e.Filename, e.UploadedAt.Format(time.RFC3339))
}
