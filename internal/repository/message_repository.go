package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(scope *tenantdb.Scope, message *model.ChatMessage) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("create chat message failed: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) GetByID(scope *tenantdb.Scope, messageID string) (*model.ChatMessage, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var message model.ChatMessage
	if err := scope.Scoped(r.db).Where("id = ?", messageID).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat message failed: %w", err)
	}
	return &message, nil
}

// ListBySessionID returns the session's messages oldest first. A
// positive limit keeps only the most recent limit messages, so a
// bounded read always carries the current end of the conversation.
func (r *MessageRepository) ListBySessionID(scope *tenantdb.Scope, sessionID string, limit int) ([]model.ChatMessage, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	var messages []model.ChatMessage
	err := scope.Scoped(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountBySessionID reports how many messages a session holds.
func (r *MessageRepository) CountBySessionID(scope *tenantdb.Scope, sessionID string) (int64, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return 0, err
	}
	var count int64
	err := scope.Scoped(r.db.Model(&model.ChatMessage{})).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count chat messages failed: %w", err)
	}
	return count, nil
}
