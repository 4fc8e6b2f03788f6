package model

import (
	"time"

	"github.com/google/uuid"
)

type InstallationStatus string

const (
	InstallationPending InstallationStatus = "pending"
	InstallationSuccess InstallationStatus = "success"
	InstallationFailed  InstallationStatus = "failed"
)

// Installation records one deployment of a product for one purchase code.
// The same (product, purchase code) pair may appear more than once.
type Installation struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProductID          string             `gorm:"type:varchar(255);not null;index:idx_installation_license" json:"product_id"`
	PurchaseCode       string             `gorm:"type:varchar(255);not null;index:idx_installation_license;index" json:"purchase_code"`
	UserID             string             `gorm:"type:varchar(255);not null;default:''" json:"user_id"`
	UserEmail          string             `gorm:"type:varchar(255);not null" json:"user_email"`
	VercelProjectID    string             `gorm:"type:varchar(255);not null" json:"vercel_project_id"`
	VercelDeploymentID string             `gorm:"type:varchar(255)" json:"vercel_deployment_id,omitempty"`
	DeploymentURL      string             `gorm:"type:text;not null" json:"deployment_url"`
	Status             InstallationStatus `gorm:"type:varchar(50);not null" json:"status"`
	ErrorMessage       *string            `gorm:"type:text" json:"error_message,omitempty"`
	Metadata           JSONMap            `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Installation) TableName() string { return "installation" }
