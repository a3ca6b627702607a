package model

import "time"

// CallRecord is the persisted call entity. Tags are a plain string slice
// here; their serialized form is a repository concern.
type CallRecord struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	UploadTimestamp time.Time `json:"upload_timestamp"`
	Transcript      string    `json:"transcript"`
	Summary         string    `json:"summary"`
	Tags            []string  `json:"tags"`
	FileHash        string    `json:"-"`
}

// UploadResponse is returned by the upload endpoint once a record exists.
type UploadResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CallsListResponse wraps the list endpoint payload.
type CallsListResponse struct {
	Calls []CallRecord `json:"calls"`
	Total int          `json:"total"`
}
