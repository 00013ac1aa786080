package repository

import (
	"fmt"
	"math"
	"sort"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(scope *tenantdb.Scope, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("create chunks batch failed: %w", err)
		}
		return nil
	})
}

// SearchNearest returns the tenant's chunks closest to the query vector,
// restricted to processed, non-deleted documents. On Postgres the
// pgvector cosine operator does the ranking in the database; elsewhere
// candidates are loaded and ranked in process.
func (r *ChunkRepository) SearchNearest(scope *tenantdb.Scope, query pgvector.Vector, limit int) ([]model.DocumentChunk, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	if r.db.Dialector.Name() == "postgres" {
		var chunks []model.DocumentChunk
		err := r.db.
			Joins("JOIN documents ON documents.id = document_chunks.document_id").
			Where("document_chunks.tenant_id = ?", scope.TenantID()).
			Where("documents.is_deleted = ? AND documents.processed_at IS NOT NULL", false).
			Clauses(clause.OrderBy{Expression: clause.Expr{
				SQL:  "document_chunks.embedding <=> ?",
				Vars: []interface{}{query},
			}}).
			Limit(limit).
			Find(&chunks).Error
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		return chunks, nil
	}

	return r.searchNearestInProcess(scope, query, limit)
}

func (r *ChunkRepository) searchNearestInProcess(scope *tenantdb.Scope, query pgvector.Vector, limit int) ([]model.DocumentChunk, error) {
	var liveDocIDs []string
	err := scope.Scoped(r.db.Model(&model.Document{})).
		Where("is_deleted = ? AND processed_at IS NOT NULL", false).
		Pluck("id", &liveDocIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list live document ids failed: %w", err)
	}
	if len(liveDocIDs) == 0 {
		return nil, nil
	}

	var chunks []model.DocumentChunk
	err = scope.Scoped(r.db).
		Where("document_id IN ?", liveDocIDs).
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("list candidate chunks failed: %w", err)
	}

	q := query.Slice()
	sort.SliceStable(chunks, func(i, j int) bool {
		return cosineSimilarity(q, chunks[i].Embedding.Slice()) > cosineSimilarity(q, chunks[j].Embedding.Slice())
	})
	if limit > len(chunks) {
		limit = len(chunks)
	}
	return chunks[:limit], nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
