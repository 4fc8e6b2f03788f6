package repository

import (
	"context"

	"gorm.io/gorm"

	"kairos/launch/internal/model"
)

type pgAuditLogRepository struct {
	db *gorm.DB
}

func NewPGAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &pgAuditLogRepository{db: db}
}

func (r *pgAuditLogRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *pgAuditLogRepository) List(ctx context.Context, action string, limit int) ([]model.AuditLog, error) {
	q := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}

	var entries []model.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
