package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feedback ratings.
const (
	RatingYes = "yes"
	RatingNo  = "no"
)

// Feedback is a user's rating of one assistant message, with an optional
// encrypted comment. At-most-one per message is product policy enforced in
// the service layer, not by a uniqueness constraint.
type Feedback struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID         string     `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID           string     `gorm:"type:uuid;not null" json:"user_id"`
	MessageID        string     `gorm:"type:uuid;not null;index" json:"message_id"`
	SessionID        string     `gorm:"type:uuid;not null" json:"session_id"`
	Rating           string     `gorm:"size:10" json:"rating"`
	CommentEncrypted []byte     `json:"-"`
	Notified         bool       `gorm:"default:false;index" json:"notified"`
	NotifiedAt       *time.Time `json:"notified_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// ValidRating reports whether rating is yes or no.
func ValidRating(rating string) bool {
	return rating == RatingYes || rating == RatingNo
}
