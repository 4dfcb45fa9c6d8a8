package models

import (
	"strings"
	"testing"
	"time"
)

func validLicense() License {
	return License{
		Name:           "Jane Buyer",
		Email:          "jane@example.com",
		ExpiresAt:      time.Now().AddDate(1, 0, 0),
		LicenseBlob:    "====BEGIN LICENSE====\n",
		InvoiceText:    "Hi Jane Buyer,\n",
		TransactionRef: "ch_1",
		IdempotencyKey: strings.Repeat("a", 64),
	}
}

func TestLicenseValidate(t *testing.T) {
	l := validLicense()
	if err := l.Validate(); err != nil {
		t.Fatalf("expected valid license, got %v", err)
	}
}

func TestLicenseValidateRejectsBadRows(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*License)
	}{
		{"missing name", func(l *License) { l.Name = "" }},
		{"bad email", func(l *License) { l.Email = "not-an-email" }},
		{"missing blob", func(l *License) { l.LicenseBlob = "" }},
		{"missing transaction ref", func(l *License) { l.TransactionRef = "" }},
		{"short idempotency key", func(l *License) { l.IdempotencyKey = "abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLicense()
			tt.mutate(&l)
			if err := l.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLicenseBeforeCreateAssignsUUID(t *testing.T) {
	l := validLicense()
	if err := l.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if l.UUID == "" {
		t.Fatal("expected a generated uuid")
	}

	fixed := l.UUID
	if err := l.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate: %v", err)
	}
	if l.UUID != fixed {
		t.Fatal("an existing uuid must not be overwritten")
	}
}
