package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kairos/launch/internal/model"
)

type pgInstallationRepository struct {
	db *gorm.DB
}

func NewPGInstallationRepository(db *gorm.DB) InstallationRepository {
	return &pgInstallationRepository{db: db}
}

func (r *pgInstallationRepository) Create(ctx context.Context, installation *model.Installation) error {
	return r.db.WithContext(ctx).Create(installation).Error
}

func (r *pgInstallationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Installation, error) {
	var installation model.Installation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&installation).Error; err != nil {
		return nil, err
	}
	return &installation, nil
}

func (r *pgInstallationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.InstallationStatus, deploymentURL string, errorMessage *string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	if deploymentURL != "" {
		updates["deployment_url"] = deploymentURL
	}

	res := r.db.WithContext(ctx).
		Model(&model.Installation{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *pgInstallationRepository) ListByProduct(ctx context.Context, productID, userID string) ([]model.Installation, error) {
	return r.list(r.db.WithContext(ctx).Where("product_id = ?", productID), userID)
}

func (r *pgInstallationRepository) ListByPurchaseCode(ctx context.Context, purchaseCode, userID string) ([]model.Installation, error) {
	return r.list(r.db.WithContext(ctx).Where("purchase_code = ?", purchaseCode), userID)
}

func (r *pgInstallationRepository) list(q *gorm.DB, userID string) ([]model.Installation, error) {
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var installations []model.Installation
	if err := q.Order("created_at DESC").Find(&installations).Error; err != nil {
		return nil, err
	}
	return installations, nil
}

func (r *pgInstallationRepository) FindByLicense(ctx context.Context, productID, purchaseCode string) (*model.Installation, error) {
	var installation model.Installation
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND purchase_code = ?", productID, purchaseCode).
		Order("created_at ASC").
		First(&installation).Error; err != nil {
		return nil, err
	}
	return &installation, nil
}
