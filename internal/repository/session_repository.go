package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(scope *tenantdb.Scope, session *model.ChatSession) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create chat session failed: %w", err)
		}
		return nil
	})
}

func (r *SessionRepository) GetByID(scope *tenantdb.Scope, sessionID string) (*model.ChatSession, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var session model.ChatSession
	err := scope.Scoped(r.db).
		Where("id = ? AND is_deleted = ?", sessionID, false).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

// GetActiveByUser returns the user's most recent active session, nil if
// none exists.
func (r *SessionRepository) GetActiveByUser(scope *tenantdb.Scope, userID string) (*model.ChatSession, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var session model.ChatSession
	err := scope.Scoped(r.db).
		Where("user_id = ? AND is_active = ? AND is_deleted = ?", userID, true, false).
		Order("last_message_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active chat session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByUser(scope *tenantdb.Scope, userID string) ([]model.ChatSession, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var sessions []model.ChatSession
	err := scope.Scoped(r.db).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("last_message_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) SetTitle(scope *tenantdb.Scope, sessionID string, titleEncrypted []byte) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		res := scope.Scoped(tx.Model(&model.ChatSession{})).
			Where("id = ?", sessionID).
			Update("title_encrypted", titleEncrypted)
		if res.Error != nil {
			return fmt.Errorf("set chat session title failed: %w", res.Error)
		}
		return nil
	})
}

func (r *SessionRepository) TouchLastMessage(scope *tenantdb.Scope, sessionID string, at time.Time) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		res := scope.Scoped(tx.Model(&model.ChatSession{})).
			Where("id = ?", sessionID).
			Update("last_message_at", at)
		if res.Error != nil {
			return fmt.Errorf("touch chat session failed: %w", res.Error)
		}
		return nil
	})
}

// SoftDelete flags the session deleted and inactive. Messages are kept;
// they become unreachable through the session listing.
func (r *SessionRepository) SoftDelete(scope *tenantdb.Scope, sessionID string) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		res := scope.Scoped(tx.Model(&model.ChatSession{})).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"is_deleted": true,
				"is_active":  false,
			})
		if res.Error != nil {
			return fmt.Errorf("soft delete chat session failed: %w", res.Error)
		}
		return nil
	})
}
