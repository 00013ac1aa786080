package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docuvault/internal/model"
)

// UserRepository is the one repository that is not tenant-scoped: it
// resolves identities, and a tenant scope only exists once a user row
// has been found or created.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByExternalID(externalID string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by external id failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmailDigest(digest []byte) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email_digest = ?", digest).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email digest failed: %w", err)
	}
	return &user, nil
}

// UpdateIdentityBinding rewrites the identity columns on an existing row.
// Used when a legacy row matched by email digest is migrated to the
// current email and external id, and when external id drift is repaired.
func (r *UserRepository) UpdateIdentityBinding(userID, email, externalID string, digest []byte) error {
	updates := map[string]any{
		"email":        email,
		"external_id":  externalID,
		"email_digest": digest,
	}
	if err := r.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update identity binding failed: %w", err)
	}
	return nil
}

func (r *UserRepository) TouchLastActive(userID string) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", userID).Update("last_active", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("touch last active failed: %w", err)
	}
	return nil
}
