package repository

import (
	"strings"

	"github.com/FrederikMaler/LicenseBay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// licenseRepository implements the LicenseRepository interface
type licenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository creates a new license repository instance
func NewLicenseRepository(db *gorm.DB) LicenseRepository {
	return &licenseRepository{db: db}
}

// Create inserts a license row. The transaction reference is the natural
// idempotency key: if a row with the same reference already exists the
// insert is a no-op and the stored row is loaded back into the argument.
func (r *licenseRepository) Create(license *models.License) error {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_ref"}},
		DoNothing: true,
	}).Create(license)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		existing, err := r.GetByTransactionRef(license.TransactionRef)
		if err != nil {
			return err
		}
		*license = *existing
	}
	return nil
}

// GetByUUID retrieves a license by its public UUID
func (r *licenseRepository) GetByUUID(uuid string) (*models.License, error) {
	var license models.License
	err := r.db.Where("uuid = ?", uuid).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetByTransactionRef retrieves a license by its processor charge reference
func (r *licenseRepository) GetByTransactionRef(ref string) (*models.License, error) {
	var license models.License
	err := r.db.Where("transaction_ref = ?", ref).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetByIdempotencyKey retrieves a license by the submission idempotency key.
// The checkout pipeline calls this before capturing payment so a stale form
// resubmission cannot trigger a second charge.
func (r *licenseRepository) GetByIdempotencyKey(key string) (*models.License, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var license models.License
	err := r.db.Where("idempotency_key = ?", trimmed).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// Count returns the total number of sold licenses
func (r *licenseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.License{}).Count(&count).Error
	return count, err
}
