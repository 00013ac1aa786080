// Package chat manages encrypted conversation sessions and messages.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"docuvault/internal/audit"
	"docuvault/internal/cache"
	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

// titleRuneLimit caps auto-generated session titles.
const titleRuneLimit = 50

type Store struct {
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
	keys     *security.KeyService
	cipher   *security.FieldCipher
	history  *cache.HistoryCache // nil when redis is not configured
	audit    *audit.Recorder
	logger   *zap.Logger
}

func NewStore(
	sessions *repository.SessionRepository,
	messages *repository.MessageRepository,
	keys *security.KeyService,
	cipher *security.FieldCipher,
	history *cache.HistoryCache,
	auditor *audit.Recorder,
	logger *zap.Logger,
) *Store {
	return &Store{
		sessions: sessions,
		messages: messages,
		keys:     keys,
		cipher:   cipher,
		history:  history,
		audit:    auditor,
		logger:   logger,
	}
}

// GetOrCreateActiveSession returns the user's current active session,
// creating one when none exists.
func (s *Store) GetOrCreateActiveSession(scope *tenantdb.Scope, userID string) (*model.ChatSession, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", types.ErrValidation)
	}
	session, err := s.sessions.GetActiveByUser(scope, userID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &model.ChatSession{
		TenantID: scope.TenantID(),
		UserID:   userID,
		IsActive: true,
	}
	if err := s.sessions.Create(scope, session); err != nil {
		return nil, err
	}
	return session, nil
}

type AddMessageInput struct {
	SessionID        string
	UserID           string
	Role             string
	Text             string
	EvidenceChunkIDs []string
	ModelUsed        string
}

// AddMessage appends one turn to a session. The first user message also
// titles the session. Cache invalidation is best effort.
func (s *Store) AddMessage(ctx context.Context, scope *tenantdb.Scope, input AddMessageInput) (*model.ChatMessage, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	if !model.ValidRole(input.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", types.ErrValidation, input.Role)
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is empty", types.ErrValidation)
	}

	session, err := s.sessions.GetByID(scope, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || (input.UserID != "" && session.UserID != input.UserID) {
		return nil, fmt.Errorf("%w: chat session not found", types.ErrNotFound)
	}

	key := s.keys.DeriveKey(scope.TenantID())
	textEnc, err := s.cipher.Encrypt(text, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt message failed: %w", err)
	}

	var evidence []byte
	if len(input.EvidenceChunkIDs) > 0 {
		evidence, err = json.Marshal(input.EvidenceChunkIDs)
		if err != nil {
			return nil, fmt.Errorf("marshal evidence ids failed: %w", err)
		}
	}

	message := &model.ChatMessage{
		SessionID:      session.ID,
		TenantID:       scope.TenantID(),
		Role:           input.Role,
		TextEncrypted:  textEnc,
		EvidenceChunks: evidence,
		ModelUsed:      input.ModelUsed,
	}
	if err := s.messages.Create(scope, message); err != nil {
		return nil, err
	}

	if err := s.sessions.TouchLastMessage(scope, session.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("touch session failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	if input.Role == model.RoleUser && len(session.TitleEncrypted) == 0 {
		s.autoTitle(scope, session.ID, text, key)
	}

	s.invalidateHistory(ctx, scope, session.ID)
	return message, nil
}

// autoTitle derives the session title from the first user message.
// Best effort; the message is already stored.
func (s *Store) autoTitle(scope *tenantdb.Scope, sessionID, text string, key []byte) {
	title := text
	if runes := []rune(title); len(runes) > titleRuneLimit {
		title = string(runes[:titleRuneLimit]) + "..."
	}
	titleEnc, err := s.cipher.Encrypt(title, key)
	if err != nil {
		s.logger.Warn("encrypt session title failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := s.sessions.SetTitle(scope, sessionID, titleEnc); err != nil {
		s.logger.Warn("set session title failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Store) invalidateHistory(ctx context.Context, scope *tenantdb.Scope, sessionID string) {
	if s.history == nil {
		return
	}
	if err := s.history.MarkDirty(ctx, scope, sessionID); err != nil {
		s.logger.Warn("mark history dirty failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.history.DeleteHistory(ctx, scope, sessionID); err != nil {
		s.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

type SessionInfo struct {
	ID            string
	Title         string
	CreatedAt     time.Time
	LastMessageAt time.Time
	IsActive      bool
}

// ListSessions returns the user's sessions, newest activity first.
// Titles that fail to decrypt come back blank.
func (s *Store) ListSessions(scope *tenantdb.Scope, userID string) ([]SessionInfo, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByUser(scope, userID)
	if err != nil {
		return nil, err
	}

	key := s.keys.DeriveKey(scope.TenantID())
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		title := ""
		if len(sess.TitleEncrypted) > 0 {
			title, err = s.cipher.Decrypt(sess.TitleEncrypted, key)
			if err != nil {
				s.logger.Warn("session title decrypt failed", zap.String("session_id", sess.ID))
				title = ""
			}
		}
		out = append(out, SessionInfo{
			ID:            sess.ID,
			Title:         title,
			CreatedAt:     sess.CreatedAt,
			LastMessageAt: sess.LastMessageAt,
			IsActive:      sess.IsActive,
		})
	}
	return out, nil
}

type MessageInfo struct {
	ID               string
	Role             string
	Text             string
	EvidenceChunkIDs []string
	ModelUsed        string
	CreatedAt        time.Time
}

// ListMessages returns a session's messages oldest first, decrypted.
// The redis cache serves repeat reads; a dirty marker or a miss falls
// through to the database and repopulates the cache.
func (s *Store) ListMessages(ctx context.Context, scope *tenantdb.Scope, userID, sessionID string, limit int) ([]MessageInfo, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || (userID != "" && session.UserID != userID) {
		return nil, fmt.Errorf("%w: chat session not found", types.ErrNotFound)
	}

	rows, err := s.loadMessages(ctx, scope, sessionID, limit)
	if err != nil {
		return nil, err
	}

	key := s.keys.DeriveKey(scope.TenantID())
	out := make([]MessageInfo, 0, len(rows))
	for _, m := range rows {
		text, err := s.cipher.Decrypt(m.TextEncrypted, key)
		if err != nil {
			s.logger.Warn("message decrypt failed",
				zap.String("message_id", m.ID),
				zap.String("session_id", sessionID),
			)
			text = ""
		}
		var evidence []string
		if len(m.EvidenceChunks) > 0 {
			if err := json.Unmarshal(m.EvidenceChunks, &evidence); err != nil {
				s.logger.Warn("evidence ids unmarshal failed", zap.String("message_id", m.ID))
			}
		}
		out = append(out, MessageInfo{
			ID:               m.ID,
			Role:             m.Role,
			Text:             text,
			EvidenceChunkIDs: evidence,
			ModelUsed:        m.ModelUsed,
			CreatedAt:        m.CreatedAt,
		})
	}
	return out, nil
}

// CountMessages reports the session's total message count, which can
// exceed what a limited ListMessages call returns.
func (s *Store) CountMessages(scope *tenantdb.Scope, userID, sessionID string) (int64, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return 0, err
	}
	session, err := s.sessions.GetByID(scope, sessionID)
	if err != nil {
		return 0, err
	}
	if session == nil || (userID != "" && session.UserID != userID) {
		return 0, fmt.Errorf("%w: chat session not found", types.ErrNotFound)
	}
	return s.messages.CountBySessionID(scope, sessionID)
}

func (s *Store) loadMessages(ctx context.Context, scope *tenantdb.Scope, sessionID string, limit int) ([]model.ChatMessage, error) {
	// Only full reads touch the cache: a bounded slice must never be
	// served to a caller asking for more than it holds.
	useCache := s.history != nil && limit <= 0
	if useCache {
		dirty, err := s.history.IsDirty(ctx, scope, sessionID)
		if err != nil {
			s.logger.Warn("history dirty check failed", zap.Error(err))
		} else if !dirty {
			cached, ok, err := s.history.GetHistory(ctx, scope, sessionID)
			if err != nil {
				s.logger.Warn("history cache read failed", zap.Error(err))
			} else if ok {
				return cached, nil
			}
		}
	}

	rows, err := s.messages.ListBySessionID(scope, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := s.history.SetHistory(ctx, scope, sessionID, rows); err != nil {
			s.logger.Warn("history cache fill failed", zap.Error(err))
		}
	}
	return rows, nil
}

type DeleteSessionInput struct {
	Scope     *tenantdb.Scope
	UserID    string
	SessionID string

	IPAddress string
	UserAgent string
}

// DeleteSession soft-deletes a session the caller owns.
func (s *Store) DeleteSession(ctx context.Context, input DeleteSessionInput) error {
	if err := tenantdb.Guard(input.Scope); err != nil {
		return err
	}
	session, err := s.sessions.GetByID(input.Scope, input.SessionID)
	if err != nil {
		return err
	}
	if session == nil || session.UserID != input.UserID {
		return fmt.Errorf("%w: chat session not found", types.ErrNotFound)
	}

	if err := s.sessions.SoftDelete(input.Scope, session.ID); err != nil {
		return err
	}
	s.invalidateHistory(ctx, input.Scope, session.ID)

	s.audit.Record(input.Scope, audit.Entry{
		UserID:       input.UserID,
		Action:       audit.ActionSessionDelete,
		ResourceType: audit.ResourceSession,
		ResourceID:   session.ID,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	})
	return nil
}
