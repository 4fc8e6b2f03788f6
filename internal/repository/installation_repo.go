package repository

import (
	"context"

	"github.com/google/uuid"

	"kairos/launch/internal/model"
)

type InstallationRepository interface {
	Create(ctx context.Context, installation *model.Installation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Installation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.InstallationStatus, deploymentURL string, errorMessage *string) error
	// ListByProduct and ListByPurchaseCode return newest first. A non-empty
	// userID limits the result to that user's installations.
	ListByProduct(ctx context.Context, productID, userID string) ([]model.Installation, error)
	ListByPurchaseCode(ctx context.Context, purchaseCode, userID string) ([]model.Installation, error)
	// FindByLicense returns the oldest installation for the pair, or
	// gorm.ErrRecordNotFound.
	FindByLicense(ctx context.Context, productID, purchaseCode string) (*model.Installation, error)
}
