// Package notify delivers feedback alerts to operators. Notifications
// carry identifiers and the rating only, never decrypted content.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notification is the queue payload for one feedback event.
type Notification struct {
	TenantID   string    `json:"tenant_id"`
	FeedbackID string    `json:"feedback_id"`
	MessageID  string    `json:"message_id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Rating     string    `json:"rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// Mailer delivers one notification to the operators' channel.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// LogMailer writes notifications to the process log. The development
// stand-in for a real delivery channel.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, n Notification) error {
	m.logger.Info("feedback notification",
		zap.String("tenant_id", n.TenantID),
		zap.String("feedback_id", n.FeedbackID),
		zap.String("message_id", n.MessageID),
		zap.String("rating", n.Rating),
	)
	return nil
}
