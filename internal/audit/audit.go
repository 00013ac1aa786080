// Package audit records tenant-scoped activity. Entries hold only
// identifiers and request metadata, never document or message content.
package audit

import (
	"go.uber.org/zap"

	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/tenantdb"
)

const (
	ActionDocumentUpload = "document.upload"
	ActionDocumentDelete = "document.delete"
	ActionDocumentList   = "document.list"
	ActionChatAsk        = "chat.ask"
	ActionSessionDelete  = "session.delete"
	ActionFeedbackSubmit = "feedback.submit"
)

const (
	ResourceDocument = "document"
	ResourceSession  = "chat_session"
	ResourceMessage  = "chat_message"
	ResourceFeedback = "feedback"
)

type Recorder struct {
	repo   *repository.AuditRepository
	logger *zap.Logger
}

func NewRecorder(repo *repository.AuditRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

type Entry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
}

// Record writes one audit entry. Audit failures are logged and
// swallowed: the recorded operation has already succeeded and must not
// be rolled back by bookkeeping.
func (r *Recorder) Record(scope *tenantdb.Scope, e Entry) {
	if err := tenantdb.Guard(scope); err != nil {
		r.logger.Error("audit record without tenant scope", zap.String("action", e.Action), zap.Error(err))
		return
	}
	err := r.repo.Create(scope, &model.AuditLog{
		TenantID:     scope.TenantID(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
	})
	if err != nil {
		r.logger.Warn("audit record failed",
			zap.String("action", e.Action),
			zap.String("resource_id", e.ResourceID),
			zap.Error(err),
		)
	}
}
