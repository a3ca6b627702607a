package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"callscribe/internal/model"
)

// callRow is the storage shape of a call record. Tags are kept as a JSON
// string in a text column so the schema works on both SQLite and Postgres.
type callRow struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Filename        string    `gorm:"size:255;not null"`
	UploadTimestamp time.Time `gorm:"index;not null"`
	Transcript      string    `gorm:"type:text"`
	Summary         string    `gorm:"type:text"`
	Tags            string    `gorm:"type:text"`
	FileHash        string    `gorm:"uniqueIndex;size:64"`
}

func (callRow) TableName() string { return "calls" }

type gormStore struct {
	db *gorm.DB
}

// Open connects to the store and migrates the schema. A DATABASE_URL with a
// postgres scheme selects the Postgres driver; anything else is treated as
// a SQLite file path.
func Open(databaseURL string) (CallStore, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&callRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &gormStore{db: db}, nil
}

// NewWithDB wraps an already-open gorm handle. Used by tests.
func NewWithDB(db *gorm.DB) (CallStore, error) {
	if err := db.AutoMigrate(&callRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) Insert(ctx context.Context, rec *model.CallRecord) error {
	row := callRow{
		ID:              rec.ID,
		Filename:        rec.Filename,
		UploadTimestamp: rec.UploadTimestamp,
		Transcript:      rec.Transcript,
		Summary:         rec.Summary,
		Tags:            encodeTags(rec.Tags),
		FileHash:        rec.FileHash,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateHash
		}
		return fmt.Errorf("failed to insert call record: %w", err)
	}
	return nil
}

func (s *gormStore) FindByHash(ctx context.Context, hash string) (*model.CallRecord, error) {
	var row callRow
	err := s.db.WithContext(ctx).Where("file_hash = ?", hash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call record by hash: %w", err)
	}
	return row.toModel(), nil
}

func (s *gormStore) FindByID(ctx context.Context, id string) (*model.CallRecord, error) {
	var row callRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query call record: %w", err)
	}
	return row.toModel(), nil
}

func (s *gormStore) UpdateAnalysis(ctx context.Context, id, transcript, summary string, tags []string) error {
	res := s.db.WithContext(ctx).Model(&callRow{}).Where("id = ?", id).Updates(map[string]any{
		"transcript": transcript,
		"summary":    summary,
		"tags":       encodeTags(tags),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update call record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) List(ctx context.Context, tag, sort string) ([]model.CallRecord, error) {
	q := s.db.WithContext(ctx).Model(&callRow{})

	// The serialized form quotes every tag, so matching `"tag"` inside the
	// JSON text is an exact-membership test, not a prefix match.
	if tag != "" {
		q = q.Where("tags LIKE ?", "%"+`"`+tag+`"`+"%")
	}

	if sort == "oldest" {
		q = q.Order("upload_timestamp ASC")
	} else {
		q = q.Order("upload_timestamp DESC")
	}

	var rows []callRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}

	records := make([]model.CallRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, *row.toModel())
	}
	return records, nil
}

func (s *gormStore) TagBlobs(ctx context.Context) ([]string, error) {
	var blobs []string
	if err := s.db.WithContext(ctx).Model(&callRow{}).Pluck("tags", &blobs).Error; err != nil {
		return nil, fmt.Errorf("failed to read tag column: %w", err)
	}
	return blobs, nil
}

func (r *callRow) toModel() *model.CallRecord {
	return &model.CallRecord{
		ID:              r.ID,
		Filename:        r.Filename,
		UploadTimestamp: r.UploadTimestamp,
		Transcript:      r.Transcript,
		Summary:         r.Summary,
		Tags:            decodeTags(r.Tags),
		FileHash:        r.FileHash,
	}
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(blob string) []string {
	if blob == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(blob), &tags); err != nil {
		return []string{}
	}
	if tags == nil {
		return []string{}
	}
	return tags
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite predates gorm's error translation hook.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
