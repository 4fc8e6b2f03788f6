package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	// No unique (product_id, purchase_code) constraint: a reused purchase
	// code is logged, not rejected.
	return db.AutoMigrate(
		&Installation{},
		&AuditLog{},
	)
}
