package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docuvault/internal/ai"
	"docuvault/internal/audit"
	"docuvault/internal/chat"
	"docuvault/internal/model"
	"docuvault/internal/rag"
	"docuvault/internal/transport/http/response"
)

// historyTurnLimit caps how many prior messages feed the generator.
const historyTurnLimit = 10

type ChatHandler struct {
	store  *chat.Store
	engine *rag.Engine
	audit  *audit.Recorder
	logger *zap.Logger
}

func NewChatHandler(store *chat.Store, engine *rag.Engine, auditor *audit.Recorder, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{store: store, engine: engine, audit: auditor, logger: logger}
}

type askRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

// Ask runs one retrieval-augmented turn: persist the question, answer
// it against the caller's corpus with recent history as context, and
// persist the answer with its evidence.
func (h *ChatHandler) Ask(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "question is required")
		return
	}
	ctx := c.Request.Context()

	sessionID := req.SessionID
	if sessionID == "" {
		session, err := h.store.GetOrCreateActiveSession(scope, user.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		sessionID = session.ID
	}

	// History is read before the new question is stored so the
	// generator does not see the question twice.
	prior, err := h.store.ListMessages(ctx, scope, user.ID, sessionID, historyTurnLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	history := make([]ai.ChatMessage, 0, len(prior))
	for _, m := range prior {
		if m.Text == "" || (m.Role != model.RoleUser && m.Role != model.RoleAssistant) {
			continue
		}
		history = append(history, ai.ChatMessage{Role: m.Role, Content: m.Text})
	}

	questionMsg, err := h.store.AddMessage(ctx, scope, chat.AddMessageInput{
		SessionID: sessionID,
		UserID:    user.ID,
		Role:      model.RoleUser,
		Text:      req.Question,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.engine.Ask(ctx, rag.AskInput{
		Scope:    scope,
		Question: req.Question,
		History:  history,
		TopK:     req.TopK,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	answerMsg, err := h.store.AddMessage(ctx, scope, chat.AddMessageInput{
		SessionID:        sessionID,
		UserID:           user.ID,
		Role:             model.RoleAssistant,
		Text:             result.Answer,
		EvidenceChunkIDs: result.EvidenceChunkIDs,
		ModelUsed:        result.ModelUsed,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(scope, audit.Entry{
		UserID:       user.ID,
		Action:       audit.ActionChatAsk,
		ResourceType: audit.ResourceMessage,
		ResourceID:   answerMsg.ID,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})

	response.OK(c, gin.H{
		"session_id":          sessionID,
		"question_message_id": questionMsg.ID,
		"answer_message_id":   answerMsg.ID,
		"answer":              result.Answer,
		"evidence_chunk_ids":  result.EvidenceChunkIDs,
		"model_used":          result.ModelUsed,
	})
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	sessions, err := h.store.ListSessions(scope, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, gin.H{
			"session_id":      s.ID,
			"title":           s.Title,
			"created_at":      s.CreatedAt,
			"last_message_at": s.LastMessageAt,
			"is_active":       s.IsActive,
		})
	}
	response.OK(c, gin.H{"sessions": items})
}

func (h *ChatHandler) History(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, 400, response.CodeBadRequest, "session_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.store.ListMessages(c.Request.Context(), scope, user.ID, sessionID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.store.CountMessages(scope, user.ID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(messages))
	for _, m := range messages {
		items = append(items, gin.H{
			"message_id":         m.ID,
			"role":               m.Role,
			"text":               m.Text,
			"evidence_chunk_ids": m.EvidenceChunkIDs,
			"model_used":         m.ModelUsed,
			"created_at":         m.CreatedAt,
		})
	}
	response.OK(c, gin.H{"session_id": sessionID, "total": total, "messages": items})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	user, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	sessionID := c.Param("id")
	err := h.store.DeleteSession(c.Request.Context(), chat.DeleteSessionInput{
		Scope:     scope,
		UserID:    user.ID,
		SessionID: sessionID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": sessionID})
}
