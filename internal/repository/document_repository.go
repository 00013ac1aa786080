package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document row. A (tenant_id, content_hash) collision
// is possible even after the service's dedupe lookup when two uploads
// of the same bytes race; it surfaces as ErrDuplicate either way.
func (r *DocumentRepository) Create(scope *tenantdb.Scope, doc *model.Document) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: document with identical content already exists", types.ErrDuplicate)
			}
			return fmt.Errorf("create document failed: %w", err)
		}
		return nil
	})
}

// GetByHash looks up a document by content hash within the tenant.
// includeDeleted also matches soft-deleted rows, which still occupy the
// (tenant_id, content_hash) unique index.
func (r *DocumentRepository) GetByHash(scope *tenantdb.Scope, contentHash string, includeDeleted bool) (*model.Document, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	q := scope.Scoped(r.db).Where("content_hash = ?", contentHash)
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	var doc model.Document
	if err := q.First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document by hash failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByID(scope *tenantdb.Scope, id string) (*model.Document, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var doc model.Document
	if err := scope.Scoped(r.db).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document by id failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUser(scope *tenantdb.Scope, userID string) ([]model.Document, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var docs []model.Document
	err := scope.Scoped(r.db).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

// Finalize marks an ingested document processed. Until Finalize runs the
// row stays in the unprocessed state and is excluded from retrieval.
func (r *DocumentRepository) Finalize(scope *tenantdb.Scope, id string, totalChunks int) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := scope.Scoped(tx.Model(&model.Document{})).
			Where("id = ?", id).
			Updates(map[string]any{
				"total_chunks": totalChunks,
				"processed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("finalize document failed: %w", res.Error)
		}
		return nil
	})
}

// Purge hard-deletes a document row and its chunks. Used to clear a
// soft-deleted duplicate so the same content can be re-uploaded without
// colliding on the content-hash unique index.
func (r *DocumentRepository) Purge(scope *tenantdb.Scope, id string) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := scope.Scoped(tx).Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("purge document chunks failed: %w", err)
		}
		if err := scope.Scoped(tx).Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("purge document failed: %w", err)
		}
		return nil
	})
}

// SoftDelete removes the chunks and flags the document deleted in one
// transaction. The row is retained so the content hash stays reserved
// until an explicit purge.
func (r *DocumentRepository) SoftDelete(scope *tenantdb.Scope, id string) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := scope.Scoped(tx).Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("delete document chunks failed: %w", err)
		}
		res := scope.Scoped(tx.Model(&model.Document{})).
			Where("id = ?", id).
			Update("is_deleted", true)
		if res.Error != nil {
			return fmt.Errorf("soft delete document failed: %w", res.Error)
		}
		return nil
	})
}
