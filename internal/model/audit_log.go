package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Action    string    `gorm:"type:varchar(255);not null;index" json:"action"`
	UserID    *string   `gorm:"type:varchar(255)" json:"user_id,omitempty"`
	Details   JSONMap   `gorm:"type:jsonb;not null" json:"details"`
	Timestamp time.Time `gorm:"not null;default:now();index" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_log" }
