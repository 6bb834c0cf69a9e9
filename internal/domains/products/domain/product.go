package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a product in the catalog upstream.
type Status string

const (
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusDiscontinued Status = "discontinued"
)

// ParseStatus maps a raw upstream value onto a known status, defaulting to active.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusInactive:
		return StatusInactive
	case StatusDiscontinued:
		return StatusDiscontinued
	default:
		return StatusActive
	}
}

// Product is the gateway's read-only copy of a catalog record.
type Product struct {
	ID           string
	Name         string
	Description  string
	Category     string
	SKU          string
	Manufacturer string
	Price        decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Status       Status
}

// ProductInput carries the mutable fields of a create or update request.
type ProductInput struct {
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Category     string           `json:"category,omitempty"`
	SKU          string           `json:"sku,omitempty"`
	Manufacturer string           `json:"manufacturer,omitempty"`
}

var (
	ErrEmptyName     = errors.New("product name is required")
	ErrMissingPrice  = errors.New("product price is required")
	ErrNegativePrice = errors.New("product price must be greater or equal to zero")
)

// ValidateForCreate checks the invariants a new product must satisfy.
func (in ProductInput) ValidateForCreate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if in.Price == nil {
		return ErrMissingPrice
	}
	return in.validatePrice()
}

// ValidateForUpdate checks the invariants of a partial update.
func (in ProductInput) ValidateForUpdate() error {
	if in.Price != nil {
		return in.validatePrice()
	}
	return nil
}

func (in ProductInput) validatePrice() error {
	if in.Price != nil && in.Price.IsNegative() {
		return ErrNegativePrice
	}
	return nil
}
