// Package document implements the encrypted document lifecycle:
// upload and ingestion, listing, and deletion.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"docuvault/internal/audit"
	"docuvault/internal/chunk"
	"docuvault/internal/extract"
	"docuvault/internal/model"
	"docuvault/internal/objectstore"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

// DashScope and similar providers cap array input size.
const embeddingBatchSize = 10

// Embedder is the slice of the LLM client ingestion needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingDimensions() int
}

type Service struct {
	docs     *repository.DocumentRepository
	chunks   *repository.ChunkRepository
	blobs    objectstore.Store
	keys     *security.KeyService
	cipher   *security.FieldCipher
	embedder Embedder
	audit    *audit.Recorder
	logger   *zap.Logger

	maxFileSize    int64
	chunkOpts      chunk.Options
	embeddingModel string
}

type Config struct {
	MaxFileSize    int64
	ChunkOptions   chunk.Options
	EmbeddingModel string
}

func NewService(
	docs *repository.DocumentRepository,
	chunks *repository.ChunkRepository,
	blobs objectstore.Store,
	keys *security.KeyService,
	cipher *security.FieldCipher,
	embedder Embedder,
	auditor *audit.Recorder,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 * 1024 * 1024
	}
	return &Service{
		docs:           docs,
		chunks:         chunks,
		blobs:          blobs,
		keys:           keys,
		cipher:         cipher,
		embedder:       embedder,
		audit:          auditor,
		logger:         logger,
		maxFileSize:    cfg.MaxFileSize,
		chunkOpts:      cfg.ChunkOptions,
		embeddingModel: cfg.EmbeddingModel,
	}
}

type UploadInput struct {
	Scope    *tenantdb.Scope
	UserID   string
	Filename string
	Data     []byte

	IPAddress string
	UserAgent string
}

type UploadResult struct {
	Document   model.Document
	ChunkCount int
}

// Upload runs the full ingestion pipeline: validate, extract, dedupe,
// persist the blob and the document row, chunk, embed, and finalize.
//
// The blob is stored first and the row committed only after it lands;
// any failure up to the row insert leaves nothing persisted, so a
// transient store outage never blocks re-uploading the same content.
// If a step after the commit fails the row stays behind unprocessed
// (processed_at null) with its blob retained for reprocessing, and is
// excluded from retrieval.
func (s *Service) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if err := tenantdb.Guard(input.Scope); err != nil {
		return nil, err
	}
	if input.UserID == "" || input.Filename == "" {
		return nil, fmt.Errorf("%w: user id and filename are required", types.ErrValidation)
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", types.ErrValidation)
	}
	if int64(len(input.Data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", types.ErrValidation, s.maxFileSize)
	}

	kind, err := extract.Detect(input.Filename, input.Data)
	if err != nil {
		return nil, err
	}
	text, err := extract.Text(kind, input.Data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(input.Data)
	contentHash := hex.EncodeToString(sum[:])

	if err := s.resolveDuplicate(ctx, input.Scope, contentHash); err != nil {
		return nil, err
	}

	key := s.keys.DeriveKey(input.Scope.TenantID())
	docID := uuid.NewString()
	blobKey := objectstore.BlobKey(input.Scope.TenantID(), docID)

	filenameEnc, err := s.cipher.Encrypt(input.Filename, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt filename failed: %w", err)
	}
	blobKeyEnc, err := s.cipher.Encrypt(blobKey, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt blob key failed: %w", err)
	}

	doc := &model.Document{
		ID:                docID,
		TenantID:          input.Scope.TenantID(),
		UserID:            input.UserID,
		ContentHash:       contentHash,
		FilenameEncrypted: filenameEnc,
		BlobKeyEncrypted:  blobKeyEnc,
		SizeBytes:         int64(len(input.Data)),
		EmbeddingModel:    s.embeddingModel,
	}
	if err := s.blobs.Put(ctx, blobKey, input.Data); err != nil {
		return nil, fmt.Errorf("%w: store blob failed: %v", types.ErrDependency, err)
	}

	if err := s.docs.Create(input.Scope, doc); err != nil {
		// The insert failed, so the blob must not outlive it.
		if derr := s.blobs.Delete(ctx, blobKey); derr != nil && derr != objectstore.ErrNotFound {
			s.logger.Warn("clean up blob after failed insert",
				zap.String("document_id", docID),
				zap.Error(derr),
			)
		}
		return nil, err
	}

	pieces := chunk.Split(text, s.chunkOpts)
	embeddings := s.embedAll(ctx, pieces)

	rows := make([]model.DocumentChunk, len(pieces))
	for i := range pieces {
		textEnc, err := s.cipher.Encrypt(pieces[i], key)
		if err != nil {
			return nil, fmt.Errorf("encrypt chunk failed: %w", err)
		}
		meta, err := chunkMetadata(input.Filename, i, pieces[i])
		if err != nil {
			return nil, err
		}
		rows[i] = model.DocumentChunk{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			TenantID:      input.Scope.TenantID(),
			ChunkIndex:    i,
			TextEncrypted: textEnc,
			Metadata:      meta,
			Embedding:     pgvector.NewVector(embeddings[i]),
		}
	}
	if err := s.chunks.CreateBatch(input.Scope, rows); err != nil {
		return nil, err
	}

	if err := s.docs.Finalize(input.Scope, docID, len(rows)); err != nil {
		return nil, err
	}
	total := len(rows)
	doc.TotalChunks = &total
	now := time.Now().UTC()
	doc.ProcessedAt = &now

	s.audit.Record(input.Scope, audit.Entry{
		UserID:       input.UserID,
		Action:       audit.ActionDocumentUpload,
		ResourceType: audit.ResourceDocument,
		ResourceID:   docID,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	})
	s.logger.Info("document ingested",
		zap.String("tenant_id", input.Scope.TenantID()),
		zap.String("document_id", docID),
		zap.Int("chunks", len(rows)),
	)

	return &UploadResult{Document: *doc, ChunkCount: len(rows)}, nil
}

// resolveDuplicate enforces one live copy of each content hash per
// tenant. A soft-deleted duplicate still occupies the unique index, so
// it is purged to let the re-upload through.
func (s *Service) resolveDuplicate(ctx context.Context, scope *tenantdb.Scope, contentHash string) error {
	existing, err := s.docs.GetByHash(scope, contentHash, true)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if !existing.IsDeleted {
		return fmt.Errorf("%w: document with identical content already exists", types.ErrDuplicate)
	}

	// Best effort: the old blob may already be gone.
	if blobKey, err := s.decryptBlobKey(existing); err == nil {
		if err := s.blobs.Delete(ctx, blobKey); err != nil && err != objectstore.ErrNotFound {
			s.logger.Warn("purge stale blob failed",
				zap.String("document_id", existing.ID),
				zap.Error(err),
			)
		}
	}
	return s.docs.Purge(scope, existing.ID)
}

// embedAll embeds chunks in provider-sized batches. A failed batch
// degrades to zero vectors instead of failing the whole ingest; those
// chunks simply never rank in similarity search.
func (s *Service) embedAll(ctx context.Context, pieces []string) [][]float32 {
	dims := s.embedder.EmbeddingDimensions()
	out := make([][]float32, len(pieces))

	for start := 0; start < len(pieces); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedBatch(ctx, pieces[start:end])
		if err != nil {
			s.logger.Warn("embedding batch failed, storing zero vectors",
				zap.Int("batch_start", start),
				zap.Error(err),
			)
			batch = nil
		}
		for i := start; i < end; i++ {
			var vec []float32
			if j := i - start; j < len(batch) {
				vec = batch[j]
			}
			if len(vec) != dims {
				vec = make([]float32, dims)
			}
			out[i] = vec
		}
	}
	return out
}

func chunkMetadata(filename string, index int, text string) (datatypes.JSON, error) {
	meta, err := json.Marshal(map[string]any{
		"source":      filename,
		"chunk_index": index,
		"char_count":  len([]rune(text)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chunk metadata failed: %w", err)
	}
	return datatypes.JSON(meta), nil
}

type DocumentInfo struct {
	ID          string
	Filename    string
	SizeBytes   int64
	TotalChunks int
	UploadedAt  time.Time
	Processed   bool
}

// List returns the caller's documents. Filenames that no longer
// decrypt are returned blank rather than hiding the document; the row
// can still be deleted by id.
func (s *Service) List(ctx context.Context, scope *tenantdb.Scope, userID string) ([]DocumentInfo, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByUser(scope, userID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(scope, audit.Entry{
		UserID:       userID,
		Action:       audit.ActionDocumentList,
		ResourceType: audit.ResourceDocument,
	})

	key := s.keys.DeriveKey(scope.TenantID())
	out := make([]DocumentInfo, 0, len(docs))
	for _, d := range docs {
		filename, err := s.cipher.Decrypt(d.FilenameEncrypted, key)
		if err != nil {
			s.logger.Warn("filename decrypt failed",
				zap.String("document_id", d.ID),
				zap.Error(err),
			)
			filename = ""
		}
		total := 0
		if d.TotalChunks != nil {
			total = *d.TotalChunks
		}
		out = append(out, DocumentInfo{
			ID:          d.ID,
			Filename:    filename,
			SizeBytes:   d.SizeBytes,
			TotalChunks: total,
			UploadedAt:  d.UploadedAt,
			Processed:   d.Processed(),
		})
	}
	return out, nil
}

type DeleteInput struct {
	Scope      *tenantdb.Scope
	UserID     string
	DocumentID string

	IPAddress string
	UserAgent string
}

// Delete removes the blob first and only then the database state. A
// blob that cannot be deleted aborts the whole operation so no
// orphaned ciphertext is left in storage.
func (s *Service) Delete(ctx context.Context, input DeleteInput) error {
	if err := tenantdb.Guard(input.Scope); err != nil {
		return err
	}
	doc, err := s.docs.GetByID(input.Scope, input.DocumentID)
	if err != nil {
		return err
	}
	if doc == nil || doc.IsDeleted || doc.UserID != input.UserID {
		return fmt.Errorf("%w: document not found", types.ErrNotFound)
	}

	blobKey, err := s.decryptBlobKey(doc)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, blobKey); err != nil && err != objectstore.ErrNotFound {
		return fmt.Errorf("%w: delete blob failed: %v", types.ErrDependency, err)
	}

	if err := s.docs.SoftDelete(input.Scope, doc.ID); err != nil {
		return err
	}

	s.audit.Record(input.Scope, audit.Entry{
		UserID:       input.UserID,
		Action:       audit.ActionDocumentDelete,
		ResourceType: audit.ResourceDocument,
		ResourceID:   doc.ID,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	})
	return nil
}

func (s *Service) decryptBlobKey(doc *model.Document) (string, error) {
	key := s.keys.DeriveKey(doc.TenantID)
	blobKey, err := s.cipher.Decrypt(doc.BlobKeyEncrypted, key)
	if err != nil {
		return "", fmt.Errorf("decrypt blob key failed: %w", err)
	}
	return blobKey, nil
}
