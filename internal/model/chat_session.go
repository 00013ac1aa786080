package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession is a tenant- and user-owned conversation. The title is
// encrypted at rest; it defaults to empty and is auto-set from the first
// user message.
type ChatSession struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       string    `gorm:"type:uuid;not null;index:idx_session_tenant" json:"tenant_id"`
	UserID         string    `gorm:"type:uuid;not null;index" json:"user_id"`
	TitleEncrypted []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	IsActive       bool      `gorm:"default:true;index" json:"is_active"`
	IsDeleted      bool      `gorm:"default:false;index:idx_session_tenant" json:"is_deleted"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.LastMessageAt.IsZero() {
		s.LastMessageAt = time.Now().UTC()
	}
	return nil
}
