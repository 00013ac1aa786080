package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(scope *tenantdb.Scope, entry *model.AuditLog) error {
	return tenantdb.Transaction(r.db, scope, func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create audit log failed: %w", err)
		}
		return nil
	})
}

func (r *AuditRepository) ListByTenant(scope *tenantdb.Scope, limit int) ([]model.AuditLog, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []model.AuditLog
	err := scope.Scoped(r.db).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list audit logs failed: %w", err)
	}
	return entries, nil
}
