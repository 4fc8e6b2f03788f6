package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kairos/launch/internal/model"
	"kairos/launch/internal/repository"
	"kairos/launch/pkg/logging"
)

type InstallationService interface {
	// Record stores a new installation. Reusing a (product, purchase code)
	// pair is logged as a duplicate and allowed.
	Record(ctx context.Context, installation *model.Installation) error
	Get(ctx context.Context, id uuid.UUID) (*model.Installation, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, deploymentURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	// ListByProduct and ListByPurchaseCode return every user's installations
	// when userID is empty.
	ListByProduct(ctx context.Context, productID, userID string) ([]model.Installation, error)
	ListByPurchaseCode(ctx context.Context, purchaseCode, userID string) ([]model.Installation, error)
}

type installationService struct {
	repo  repository.InstallationRepository
	audit AuditService
}

func NewInstallationService(repo repository.InstallationRepository, audit AuditService) InstallationService {
	return &installationService{repo: repo, audit: audit}
}

func (s *installationService) Record(ctx context.Context, installation *model.Installation) error {
	logger := logging.FromContext(ctx)

	existing, err := s.repo.FindByLicense(ctx, installation.ProductID, installation.PurchaseCode)
	duplicate := err == nil
	switch {
	case duplicate:
		logger.Warn("duplicate license detected",
			zap.String("product_id", installation.ProductID),
			zap.String("purchase_code", installation.PurchaseCode),
			zap.String("existing_installation", existing.ID.String()),
		)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		logger.Warn("duplicate license check failed", zap.Error(err))
	}

	if installation.ID == uuid.Nil {
		installation.ID = uuid.New()
	}
	if installation.Status == "" {
		installation.Status = model.InstallationPending
	}
	if err := s.repo.Create(ctx, installation); err != nil {
		return fmt.Errorf("create installation: %w", err)
	}

	s.audit.Log(ctx, AuditInstallationCreated, installation.UserID, map[string]interface{}{
		"installationId": installation.ID.String(),
		"productId":      installation.ProductID,
		"duplicate":      duplicate,
	})
	return nil
}

func (s *installationService) Get(ctx context.Context, id uuid.UUID) (*model.Installation, error) {
	installation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstallationNotFound
		}
		return nil, fmt.Errorf("get installation: %w", err)
	}
	return installation, nil
}

func (s *installationService) MarkSucceeded(ctx context.Context, id uuid.UUID, deploymentURL string) error {
	return s.updateStatus(ctx, id, model.InstallationSuccess, deploymentURL, nil)
}

func (s *installationService) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return s.updateStatus(ctx, id, model.InstallationFailed, "", &message)
}

func (s *installationService) updateStatus(ctx context.Context, id uuid.UUID, status model.InstallationStatus, url string, msg *string) error {
	if err := s.repo.UpdateStatus(ctx, id, status, url, msg); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInstallationNotFound
		}
		return fmt.Errorf("update installation status: %w", err)
	}
	return nil
}

func (s *installationService) ListByProduct(ctx context.Context, productID, userID string) ([]model.Installation, error) {
	return s.repo.ListByProduct(ctx, productID, userID)
}

func (s *installationService) ListByPurchaseCode(ctx context.Context, purchaseCode, userID string) ([]model.Installation, error) {
	return s.repo.ListByPurchaseCode(ctx, purchaseCode, userID)
}
