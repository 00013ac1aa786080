// Package identity maps verified provider identities onto user rows.
//
// Resolution is tolerant of historical drift: rows created before
// external ids were collected carry a synthesized placeholder, and rows
// created before plaintext email storage carry only the keyed email
// digest. The resolver finds all three generations and migrates old
// rows in place as they are seen.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/types"
)

// devPlaceholderPrefix marks synthesized external ids on rows created
// without a provider id. A placeholder never wins an external-id lookup.
const devPlaceholderPrefix = "dev_"

type Resolver struct {
	users        *repository.UserRepository
	emailHashKey []byte
	logger       *zap.Logger
}

func NewResolver(users *repository.UserRepository, emailHashKey string, logger *zap.Logger) *Resolver {
	return &Resolver{
		users:        users,
		emailHashKey: []byte(emailHashKey),
		logger:       logger,
	}
}

// Claims is the verified identity handed in by the transport layer.
type Claims struct {
	Email      string
	ExternalID string
}

// Resolve finds or creates the user row for the given identity.
//
// Lookup order: plaintext email, then external id (ignoring dev_
// placeholders), then the legacy email digest. A digest match is
// migrated to the current binding in place, so the tenant id and all
// data keyed on it survive the identity upgrade.
func (r *Resolver) Resolve(claims Claims) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: identity email is required", types.ErrValidation)
	}
	externalID := strings.TrimSpace(claims.ExternalID)
	if strings.HasPrefix(externalID, devPlaceholderPrefix) {
		// A placeholder is not a provider identity. Treating it as
		// absent keeps one user's placeholder from binding another's
		// login.
		externalID = ""
	}

	user, err := r.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		r.repairDrift(user, email, externalID)
		return user, nil
	}

	if externalID != "" {
		user, err = r.users.GetByExternalID(externalID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			r.repairDrift(user, email, externalID)
			return user, nil
		}
	}

	digest := r.emailDigest(email)
	user, err = r.users.GetByEmailDigest(digest)
	if err != nil {
		return nil, err
	}
	if user != nil {
		// Legacy row: persist the plaintext email and current external
		// id so future logins hit the fast path.
		boundExternal := user.ExternalID
		if externalID != "" {
			boundExternal = externalID
		}
		if err := r.users.UpdateIdentityBinding(user.ID, email, boundExternal, digest); err != nil {
			return nil, err
		}
		user.Email = email
		user.ExternalID = boundExternal
		user.EmailDigest = digest
		r.logger.Info("migrated legacy identity row",
			zap.String("user_id", user.ID),
			zap.String("tenant_id", user.TenantID),
		)
		return user, nil
	}

	return r.create(email, externalID, digest)
}

func (r *Resolver) create(email, externalID string, digest []byte) (*model.User, error) {
	if externalID == "" {
		externalID = devPlaceholderPrefix + hex.EncodeToString(digest)[:12]
	}
	user := &model.User{
		Email:       email,
		ExternalID:  externalID,
		EmailDigest: digest,
	}
	if err := r.users.Create(user); err != nil {
		// Concurrent first login for the same identity: the other
		// request won the insert, reselect its row.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, selErr := r.users.GetByEmail(email)
			if selErr != nil {
				return nil, selErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	r.logger.Info("created user",
		zap.String("user_id", user.ID),
		zap.String("tenant_id", user.TenantID),
	)
	return user, nil
}

// repairDrift rebinds the external id when the provider now reports a
// real one and the row still carries a placeholder or an outdated value.
// Best effort; resolution already succeeded.
func (r *Resolver) repairDrift(user *model.User, email string, externalID string) {
	if externalID == "" {
		return
	}
	if user.ExternalID == externalID {
		return
	}
	if err := r.users.UpdateIdentityBinding(user.ID, email, externalID, r.emailDigest(email)); err != nil {
		r.logger.Warn("external id rebind failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.ExternalID = externalID
}

func (r *Resolver) emailDigest(email string) []byte {
	mac := hmac.New(sha256.New, r.emailHashKey)
	mac.Write([]byte(email))
	return mac.Sum(nil)
}
