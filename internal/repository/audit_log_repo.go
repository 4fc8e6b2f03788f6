package repository

import (
	"context"

	"kairos/launch/internal/model"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	// List returns the newest entries first; an empty action matches all.
	List(ctx context.Context, action string, limit int) ([]model.AuditLog, error)
}
