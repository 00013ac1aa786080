package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmbeddingDimensions is the fixed width of chunk embedding vectors.
const EmbeddingDimensions = 1024

// DocumentChunk is a bounded slice of a document's extracted text paired
// with its embedding vector. TenantID is denormalized from the parent
// Document so isolation filters never need a join. Chunks are created in
// bulk during ingestion, never updated, and cascade-deleted with their
// document. Metadata must never contain raw chunk plaintext.
type DocumentChunk struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID    string          `gorm:"type:uuid;not null;index" json:"document_id"`
	TenantID      string          `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ChunkIndex    int             `gorm:"not null" json:"chunk_index"`
	TextEncrypted []byte          `gorm:"not null" json:"-"`
	Metadata      datatypes.JSON  `json:"metadata"`
	Embedding     pgvector.Vector `gorm:"type:vector(1024)" json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
