package repository

import (
	"github.com/FrederikMaler/LicenseBay/app/models"
)

// LicenseRepository defines the interface for license persistence. The
// checkout pipeline only ever inserts and looks up; sold licenses are never
// updated or deleted.
type LicenseRepository interface {
	// Create inserts a finalized license. A row with the same transaction
	// reference already being present is treated as success, not a failure:
	// the charge behind it has already been captured, so a retried persist
	// must not be rejected.
	Create(license *models.License) error
	GetByUUID(uuid string) (*models.License, error)
	GetByTransactionRef(ref string) (*models.License, error)
	GetByIdempotencyKey(key string) (*models.License, error)
	Count() (int64, error)
}

// Repositories bundles all repository instances.
type Repositories struct {
	License LicenseRepository
}
