package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docuvault/internal/ai"
	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

const testDims = 4

type fakeLLM struct {
	embedErr    error
	completeErr error
	answer      string
	lastPrompt  string
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	// Direction keyed on the first rune keeps ranking deterministic.
	vec := make([]float32, testDims)
	vec[int([]rune(text)[0])%testDims] = 1
	return vec, nil
}

func (f *fakeLLM) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	f.lastPrompt = messages[len(messages)-1].Content
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if f.answer == "" {
		return "generated answer", nil
	}
	return f.answer, nil
}

func (f *fakeLLM) ModelName() string { return "fake-model" }

type fixture struct {
	engine *Engine
	db     *gorm.DB
	llm    *fakeLLM
	keys   *security.KeyService
	cipher *security.FieldCipher
	scope  *tenantdb.Scope
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Document{}, &model.DocumentChunk{}))

	keys, err := security.NewKeyService("test-master-secret", "production", zap.NewNop())
	require.NoError(t, err)
	cipher := security.NewFieldCipher(true)
	llm := &fakeLLM{}

	scope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)

	return &fixture{
		engine: NewEngine(repository.NewChunkRepository(db), keys, cipher, llm, zap.NewNop(), 3),
		db:     db,
		llm:    llm,
		keys:   keys,
		cipher: cipher,
		scope:  scope,
	}
}

// seedChunk stores an encrypted chunk under a processed document.
func (f *fixture) seedChunk(t *testing.T, scope *tenantdb.Scope, text string, vec []float32) string {
	docID := f.seedDocument(t, scope)
	return f.seedChunkForDoc(t, scope, docID, text, vec)
}

func (f *fixture) seedDocument(t *testing.T, scope *tenantdb.Scope) string {
	now := time.Now().UTC()
	doc := &model.Document{
		ID:                uuid.NewString(),
		TenantID:          scope.TenantID(),
		UserID:            uuid.NewString(),
		ContentHash:       uuid.NewString(),
		FilenameEncrypted: []byte{1},
		BlobKeyEncrypted:  []byte{1},
		SizeBytes:         1,
		ProcessedAt:       &now,
	}
	require.NoError(t, f.db.Create(doc).Error)
	return doc.ID
}

func (f *fixture) seedChunkForDoc(t *testing.T, scope *tenantdb.Scope, docID, text string, vec []float32) string {
	key := f.keys.DeriveKey(scope.TenantID())
	enc, err := f.cipher.Encrypt(text, key)
	require.NoError(t, err)
	c := &model.DocumentChunk{
		ID:            uuid.NewString(),
		DocumentID:    docID,
		TenantID:      scope.TenantID(),
		TextEncrypted: enc,
		Embedding:     pgvector.NewVector(vec),
	}
	require.NoError(t, f.db.Create(c).Error)
	return c.ID
}

func vecFor(r rune) []float32 {
	v := make([]float32, testDims)
	v[int(r)%testDims] = 1
	return v
}

func TestAskAnswersFromMatchingChunks(t *testing.T) {
	f := newFixture(t)
	id := f.seedChunk(t, f.scope, "the onboarding doc says welcome", vecFor('q'))

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question about onboarding"})
	require.NoError(t, err)

	assert.Equal(t, "generated answer", res.Answer)
	assert.Equal(t, []string{id}, res.EvidenceChunkIDs)
	assert.Equal(t, "fake-model", res.ModelUsed)
	assert.Contains(t, f.llm.lastPrompt, "the onboarding doc says welcome")
	assert.Contains(t, f.llm.lastPrompt, "question about onboarding")
}

func TestAskEmptyCorpusReturnsNoInformation(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "anything"})
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, res.Answer)
	assert.Empty(t, res.EvidenceChunkIDs)
	// The generator must not have been called.
	assert.Empty(t, f.llm.lastPrompt)
}

func TestAskDropsUndecryptableChunks(t *testing.T) {
	f := newFixture(t)
	good := f.seedChunk(t, f.scope, "intact chunk text", vecFor('q'))

	// A chunk encrypted under a different tenant's key cannot decrypt.
	otherKey := f.keys.DeriveKey(uuid.NewString())
	enc, err := f.cipher.Encrypt("foreign ciphertext", otherKey)
	require.NoError(t, err)
	docID := f.seedDocument(t, f.scope)
	bad := &model.DocumentChunk{
		ID:            uuid.NewString(),
		DocumentID:    docID,
		TenantID:      f.scope.TenantID(),
		TextEncrypted: enc,
		Embedding:     pgvector.NewVector(vecFor('q')),
	}
	require.NoError(t, f.db.Create(bad).Error)

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question"})
	require.NoError(t, err)
	assert.Equal(t, []string{good}, res.EvidenceChunkIDs)
	assert.NotContains(t, f.llm.lastPrompt, "foreign")
}

func TestAskAllChunksUndecryptableReturnsNoInformation(t *testing.T) {
	f := newFixture(t)
	otherKey := f.keys.DeriveKey(uuid.NewString())
	enc, err := f.cipher.Encrypt("lost forever", otherKey)
	require.NoError(t, err)
	docID := f.seedDocument(t, f.scope)
	require.NoError(t, f.db.Create(&model.DocumentChunk{
		ID:            uuid.NewString(),
		DocumentID:    docID,
		TenantID:      f.scope.TenantID(),
		TextEncrypted: enc,
		Embedding:     pgvector.NewVector(vecFor('q')),
	}).Error)

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question"})
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, res.Answer)
	assert.Empty(t, f.llm.lastPrompt)
}

func TestAskGenerationFailureReturnsApology(t *testing.T) {
	f := newFixture(t)
	id := f.seedChunk(t, f.scope, "context text", vecFor('q'))
	f.llm.completeErr = errors.New("model overloaded")

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question"})
	require.NoError(t, err)
	assert.Equal(t, GenerationFailedAnswer, res.Answer)
	assert.Equal(t, []string{id}, res.EvidenceChunkIDs)
}

func TestAskEmbeddingFailureIsAnError(t *testing.T) {
	f := newFixture(t)
	f.seedChunk(t, f.scope, "context text", vecFor('q'))
	f.llm.embedErr = errors.New("embedding backend down")

	_, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question"})
	assert.True(t, errors.Is(err, types.ErrDependency))
}

func TestAskIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	f.seedChunk(t, f.scope, "tenant A secret corpus", vecFor('q'))

	otherScope, err := tenantdb.NewScope(uuid.NewString())
	require.NoError(t, err)

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: otherScope, Question: "question"})
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, res.Answer)
}

func TestAskExcludesDeletedAndUnprocessedDocuments(t *testing.T) {
	f := newFixture(t)

	// Deleted document.
	deletedDoc := f.seedDocument(t, f.scope)
	require.NoError(t, f.db.Model(&model.Document{}).Where("id = ?", deletedDoc).Update("is_deleted", true).Error)
	f.seedChunkForDoc(t, f.scope, deletedDoc, "deleted doc text", vecFor('q'))

	// Unprocessed document.
	pending := &model.Document{
		ID:                uuid.NewString(),
		TenantID:          f.scope.TenantID(),
		UserID:            uuid.NewString(),
		ContentHash:       uuid.NewString(),
		FilenameEncrypted: []byte{1},
		BlobKeyEncrypted:  []byte{1},
		SizeBytes:         1,
	}
	require.NoError(t, f.db.Create(pending).Error)
	f.seedChunkForDoc(t, f.scope, pending.ID, "pending doc text", vecFor('q'))

	res, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "question"})
	require.NoError(t, err)
	assert.Equal(t, NoInformationAnswer, res.Answer)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "   "})
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = f.engine.Ask(context.Background(), AskInput{Question: "q"})
	assert.True(t, errors.Is(err, types.ErrIsolationViolation))
}

func TestAskIncludesHistoryInPrompt(t *testing.T) {
	f := newFixture(t)
	f.seedChunk(t, f.scope, "context text", vecFor('q'))

	history := []ai.ChatMessage{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	_, err := f.engine.Ask(context.Background(), AskInput{Scope: f.scope, Question: "follow-up", History: history})
	require.NoError(t, err)
	// The last message holds the grounded prompt; history rides before it.
	assert.True(t, strings.Contains(f.llm.lastPrompt, "follow-up"))
}
