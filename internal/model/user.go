package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User binds an external verified identity to exactly one tenant.
// Email is the durable lookup anchor: ExternalID may be rebound over time
// (identity-provider instability), but one email never maps to two tenants.
// EmailDigest holds the legacy keyed hash of the email for rows created
// before plaintext email storage was adopted.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID  string    `gorm:"size:255;not null;uniqueIndex" json:"external_id"`
	Email       string    `gorm:"size:255;uniqueIndex" json:"email"`
	EmailDigest []byte    `gorm:"uniqueIndex" json:"-"`
	TenantID    string    `gorm:"type:uuid;not null;uniqueIndex" json:"tenant_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.TenantID == "" {
		u.TenantID = uuid.NewString()
	}
	return nil
}
