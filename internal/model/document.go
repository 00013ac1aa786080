package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is an uploaded file owned by one tenant and one user. The blob
// itself lives in the object store under an opaque tenant-prefixed key;
// both the key reference and the original filename are encrypted at rest.
//
// The (tenant_id, content_hash) uniqueness constraint covers soft-deleted
// rows too: a collision with a soft-deleted row must be hard-purged before
// a new row with the same hash can be inserted.
type Document struct {
	ID                string     `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          string     `gorm:"type:uuid;not null;index:idx_tenant_docs;uniqueIndex:idx_tenant_doc_hash" json:"tenant_id"`
	UserID            string     `gorm:"type:uuid;not null;index" json:"user_id"`
	ContentHash       string     `gorm:"size:64;not null;uniqueIndex:idx_tenant_doc_hash" json:"content_hash"`
	FilenameEncrypted []byte     `gorm:"not null" json:"-"`
	BlobKeyEncrypted  []byte     `gorm:"not null" json:"-"`
	SizeBytes         int64      `gorm:"not null" json:"size_bytes"`
	TotalChunks       *int       `json:"total_chunks"`
	EmbeddingModel    string     `gorm:"size:100" json:"embedding_model"`
	UploadedAt        time.Time  `json:"uploaded_at"`
	ProcessedAt       *time.Time `json:"processed_at"`
	IsDeleted         bool       `gorm:"default:false;index:idx_tenant_docs" json:"is_deleted"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	return nil
}

// Processed reports whether ingestion reached the terminal processed state.
func (d *Document) Processed() bool {
	return d.ProcessedAt != nil
}
