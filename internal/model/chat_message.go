package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one turn in a session. Text is encrypted at rest.
// EvidenceChunks holds the ids of the chunks used to produce an assistant
// answer, for traceability; it must never contain chunk plaintext.
type ChatMessage struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      string         `gorm:"type:uuid;not null;index:idx_msg_session" json:"session_id"`
	TenantID       string         `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Role           string         `gorm:"size:20;not null" json:"role"`
	TextEncrypted  []byte         `gorm:"not null" json:"-"`
	EvidenceChunks datatypes.JSON `json:"evidence_chunks"`
	ModelUsed      string         `gorm:"size:100" json:"model_used"`
	CreatedAt      time.Time      `gorm:"index:idx_msg_session" json:"created_at"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ValidRole reports whether role is one of user, assistant, system.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}
