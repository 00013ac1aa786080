// Package rag answers questions from the caller's encrypted document
// corpus: embed the question, rank chunks, decrypt the survivors, and
// generate an answer grounded on them.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"docuvault/internal/ai"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

// Fixed user-facing answers. Returned as normal answers, not errors,
// so the conversation keeps its shape whatever the corpus state.
const (
	NoInformationAnswer    = "I could not find any information about that in your documents."
	GenerationFailedAnswer = "I ran into a problem while generating an answer. Please try again."
)

const defaultTopK = 5

const systemPrompt = "You are a helpful assistant. Answer the user's question based only on the provided context from their documents. If the context does not contain enough information, say so. Do not make up facts."

// LLM is the slice of the model client retrieval needs.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	ModelName() string
}

type Engine struct {
	chunks *repository.ChunkRepository
	keys   *security.KeyService
	cipher *security.FieldCipher
	llm    LLM
	logger *zap.Logger
	topK   int
}

func NewEngine(
	chunks *repository.ChunkRepository,
	keys *security.KeyService,
	cipher *security.FieldCipher,
	llm LLM,
	logger *zap.Logger,
	topK int,
) *Engine {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Engine{
		chunks: chunks,
		keys:   keys,
		cipher: cipher,
		llm:    llm,
		logger: logger,
		topK:   topK,
	}
}

type AskInput struct {
	Scope    *tenantdb.Scope
	Question string
	// History is prior conversation turns, already decrypted, oldest
	// first. Optional.
	History []ai.ChatMessage
	TopK    int
}

type AskResult struct {
	Answer string
	// EvidenceChunkIDs identifies the chunks the answer was grounded
	// on. Identifiers only; chunk plaintext never leaves this package.
	EvidenceChunkIDs []string
	ModelUsed        string
}

// Ask answers one question against the tenant's corpus.
//
// Chunks whose ciphertext no longer decrypts are dropped and logged.
// With no surviving chunk the fixed no-information answer is returned
// without calling the generator; a generator failure degrades to the
// fixed apology. Only the question embedding can fail the operation.
func (e *Engine) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if err := tenantdb.Guard(input.Scope); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", types.ErrValidation)
	}
	topK := input.TopK
	if topK <= 0 {
		topK = e.topK
	}

	queryVec, err := e.llm.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question failed: %v", types.ErrDependency, err)
	}

	candidates, err := e.chunks.SearchNearest(input.Scope, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, err
	}

	key := e.keys.DeriveKey(input.Scope.TenantID())
	var (
		texts       []string
		evidenceIDs []string
	)
	for _, c := range candidates {
		text, err := e.cipher.Decrypt(c.TextEncrypted, key)
		if err != nil {
			e.logger.Warn("dropping undecryptable chunk",
				zap.String("tenant_id", input.Scope.TenantID()),
				zap.String("chunk_id", c.ID),
			)
			continue
		}
		texts = append(texts, text)
		evidenceIDs = append(evidenceIDs, c.ID)
	}

	if len(texts) == 0 {
		return &AskResult{Answer: NoInformationAnswer}, nil
	}

	messages := make([]ai.ChatMessage, 0, len(input.History)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, input.History...)
	messages = append(messages, ai.ChatMessage{Role: "user", Content: buildPrompt(texts, question)})

	answer, err := e.llm.Complete(ctx, messages)
	if err != nil {
		e.logger.Warn("answer generation failed",
			zap.String("tenant_id", input.Scope.TenantID()),
			zap.Error(err),
		)
		return &AskResult{
			Answer:           GenerationFailedAnswer,
			EvidenceChunkIDs: evidenceIDs,
		}, nil
	}

	return &AskResult{
		Answer:           strings.TrimSpace(answer),
		EvidenceChunkIDs: evidenceIDs,
		ModelUsed:        e.llm.ModelName(),
	}, nil
}

func buildPrompt(texts []string, question string) string {
	var b strings.Builder
	b.WriteString("Context:")
	for i, t := range texts {
		fmt.Fprintf(&b, "\n[Context %d]\n", i+1)
		b.WriteString(t)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
