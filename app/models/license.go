package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// License is one completed sale: the signed license artifact plus the
// invoice that was shown and mailed to the buyer. Rows are written once and
// never updated or deleted by the checkout pipeline.
type License struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	Name           string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email          string    `gorm:"type:varchar(200);not null" json:"email" validate:"required,email,max=200"`
	ExpiresAt      time.Time `gorm:"type:timestamp;not null" json:"expires_at" validate:"required"`
	LicenseBlob    string    `gorm:"type:text;not null" json:"-" validate:"required"`
	InvoiceText    string    `gorm:"type:text;not null" json:"-" validate:"required"`
	TransactionRef string    `gorm:"type:varchar(100) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"transaction_ref" validate:"required,max=100"`
	IdempotencyKey string    `gorm:"type:char(64) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"-" validate:"required,len=64"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *License) Validate() error {
	v := validator.New()

	return v.Struct(l)
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.UUID == "" {
		l.UUID = uuid.New().String()
	}

	return nil
}
