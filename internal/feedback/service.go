// Package feedback records message ratings and queues operator
// notifications for negative ones.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"docuvault/internal/audit"
	"docuvault/internal/model"
	"docuvault/internal/notify"
	"docuvault/internal/repository"
	"docuvault/internal/security"
	"docuvault/internal/tenantdb"
	"docuvault/internal/types"
)

// Publisher is the queue surface notifications go out on.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

type Service struct {
	feedback  *repository.FeedbackRepository
	messages  *repository.MessageRepository
	keys      *security.KeyService
	cipher    *security.FieldCipher
	publisher Publisher // nil when rabbitmq is not configured
	audit     *audit.Recorder
	logger    *zap.Logger
}

func NewService(
	feedback *repository.FeedbackRepository,
	messages *repository.MessageRepository,
	keys *security.KeyService,
	cipher *security.FieldCipher,
	publisher Publisher,
	auditor *audit.Recorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		feedback:  feedback,
		messages:  messages,
		keys:      keys,
		cipher:    cipher,
		publisher: publisher,
		audit:     auditor,
		logger:    logger,
	}
}

type SubmitInput struct {
	Scope     *tenantdb.Scope
	UserID    string
	MessageID string
	Rating    string
	Comment   string

	IPAddress string
	UserAgent string
}

// Submit records a rating for an assistant message. A repeat submission
// by the same user updates the stored rating instead of duplicating it.
// Negative ratings are queued for operator notification; queue failures
// are logged and never fail the submission.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*model.Feedback, error) {
	if err := tenantdb.Guard(input.Scope); err != nil {
		return nil, err
	}
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", types.ErrValidation)
	}
	if !model.ValidRating(input.Rating) {
		return nil, fmt.Errorf("%w: invalid rating %q", types.ErrValidation, input.Rating)
	}

	message, err := s.messages.GetByID(input.Scope, input.MessageID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, fmt.Errorf("%w: message not found", types.ErrNotFound)
	}
	if message.Role != model.RoleAssistant {
		return nil, fmt.Errorf("%w: only assistant messages can be rated", types.ErrValidation)
	}

	var commentEnc []byte
	if comment := strings.TrimSpace(input.Comment); comment != "" {
		key := s.keys.DeriveKey(input.Scope.TenantID())
		commentEnc, err = s.cipher.Encrypt(comment, key)
		if err != nil {
			return nil, fmt.Errorf("encrypt feedback comment failed: %w", err)
		}
	}

	existing, err := s.feedback.GetByMessageAndUser(input.Scope, input.MessageID, input.UserID)
	if err != nil {
		return nil, err
	}

	var fb *model.Feedback
	if existing != nil {
		if err := s.feedback.UpdateRating(input.Scope, existing.ID, input.Rating, commentEnc); err != nil {
			return nil, err
		}
		existing.Rating = input.Rating
		existing.CommentEncrypted = commentEnc
		fb = existing
	} else {
		fb = &model.Feedback{
			TenantID:         input.Scope.TenantID(),
			UserID:           input.UserID,
			MessageID:        message.ID,
			SessionID:        message.SessionID,
			Rating:           input.Rating,
			CommentEncrypted: commentEnc,
		}
		if err := s.feedback.Create(input.Scope, fb); err != nil {
			return nil, err
		}
	}

	if input.Rating == model.RatingNo {
		s.enqueueNotification(ctx, fb)
	}

	s.audit.Record(input.Scope, audit.Entry{
		UserID:       input.UserID,
		Action:       audit.ActionFeedbackSubmit,
		ResourceType: audit.ResourceFeedback,
		ResourceID:   fb.ID,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
	})
	return fb, nil
}

func (s *Service) enqueueNotification(ctx context.Context, fb *model.Feedback) {
	if s.publisher == nil {
		return
	}
	n := notify.Notification{
		TenantID:   fb.TenantID,
		FeedbackID: fb.ID,
		MessageID:  fb.MessageID,
		SessionID:  fb.SessionID,
		UserID:     fb.UserID,
		Rating:     fb.Rating,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.logger.Warn("queue feedback notification failed",
			zap.String("feedback_id", fb.ID),
			zap.Error(err),
		)
	}
}
