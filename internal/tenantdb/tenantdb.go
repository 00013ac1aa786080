// Package tenantdb enforces tenant isolation on every data-access path.
//
// A Scope is the per-operation isolation token. Reads append an explicit
// tenant_id filter through Scoped; writes go through Transaction, which
// re-applies the Postgres row-level-security session variable inside the
// same transaction that commits. Re-applying per transaction (not once per
// handle) is what defends against pooled connections silently reverting to
// a default context between reuses. When isolation cannot be established
// the operation fails closed with types.ErrIsolationViolation.
package tenantdb

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"docuvault/internal/types"
)

// Scope binds one tenant id to a data-access operation.
type Scope struct {
	tenantID string
}

// NewScope validates the tenant id and returns an isolation token.
func NewScope(tenantID string) (*Scope, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", types.ErrIsolationViolation)
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		return nil, fmt.Errorf("%w: malformed tenant id", types.ErrIsolationViolation)
	}
	return &Scope{tenantID: tenantID}, nil
}

func (s *Scope) TenantID() string {
	return s.tenantID
}

// Guard fails closed when no valid scope is present. Every repository
// method calls this before touching a tenant-scoped table.
func Guard(s *Scope) error {
	if s == nil || s.tenantID == "" {
		return fmt.Errorf("%w: operation attempted without tenant scope", types.ErrIsolationViolation)
	}
	return nil
}

// Set applies the row-level-security session variable on the given
// connection. Idempotent and cheap. A no-op on non-Postgres dialects,
// where isolation relies on the explicit tenant_id filters alone.
func (s *Scope) Set(tx *gorm.DB) error {
	if err := Guard(s); err != nil {
		return err
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT set_config('app.current_tenant_id', ?, false)", s.tenantID).Error; err != nil {
		return fmt.Errorf("set tenant context failed: %w", err)
	}
	return nil
}

// Scoped returns a query builder restricted to the scope's tenant.
// Callers must Guard first; Scoped on a nil scope filters on the empty
// tenant id, which matches no rows (fail closed, never open).
func (s *Scope) Scoped(db *gorm.DB) *gorm.DB {
	id := ""
	if s != nil {
		id = s.tenantID
	}
	return db.Where("tenant_id = ?", id)
}

// Transaction runs fn inside a transaction with the tenant context
// re-asserted first. The SET rides the same pooled connection as the
// commit, so a reused handle can never commit under a stale context.
func Transaction(db *gorm.DB, s *Scope, fn func(tx *gorm.DB) error) error {
	if err := Guard(s); err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := s.Set(tx); err != nil {
			return err
		}
		return fn(tx)
	})
}
