package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(scope *tenantdb.Scope, fb *model.Feedback) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(fb).Error; err != nil {
			return fmt.Errorf("create feedback failed: %w", err)
		}
		return nil
	})
}

// GetByMessageAndUser returns the user's existing feedback for a
// message, nil if none. One rating per user per message.
func (r *FeedbackRepository) GetByMessageAndUser(scope *tenantdb.Scope, messageID, userID string) (*model.Feedback, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	var fb model.Feedback
	err := scope.Scoped(r.db).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&fb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get feedback failed: %w", err)
	}
	return &fb, nil
}

func (r *FeedbackRepository) UpdateRating(scope *tenantdb.Scope, feedbackID, rating string, commentEncrypted []byte) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		res := scope.Scoped(tx.Model(&model.Feedback{})).
			Where("id = ?", feedbackID).
			Updates(map[string]any{
				"rating":            rating,
				"comment_encrypted": commentEncrypted,
			})
		if res.Error != nil {
			return fmt.Errorf("update feedback failed: %w", res.Error)
		}
		return nil
	})
}

func (r *FeedbackRepository) MarkNotified(scope *tenantdb.Scope, feedbackID string) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := scope.Scoped(tx.Model(&model.Feedback{})).
			Where("id = ?", feedbackID).
			Updates(map[string]any{
				"notified":    true,
				"notified_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark feedback notified failed: %w", res.Error)
		}
		return nil
	})
}
