// Package models defines the core data structures shared across partmatch.
package models

import (
	"time"

	"github.com/google/uuid"
)

// CatalogSide identifies which catalog a part record belongs to
type CatalogSide string

const (
	CatalogSideStore    CatalogSide = "store"
	CatalogSideSupplier CatalogSide = "supplier"
)

// PartRecord is a single row from either catalog. Records are created by
// ingestion and are read-only to the matching core.
type PartRecord struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	ProjectID       uuid.UUID   `json:"project_id" db:"project_id"`
	Side            CatalogSide `json:"side" db:"side"`
	PartNumber      string      `json:"part_number" db:"part_number"`
	CanonicalNumber string      `json:"canonical_number" db:"canonical_number"`
	LineCode        *string     `json:"line_code,omitempty" db:"line_code"`
	MfrCode         *string     `json:"mfr_code,omitempty" db:"mfr_code"`
	Description     string      `json:"description" db:"description"`
	Cost            *float64    `json:"cost,omitempty" db:"cost"`
	Quantity        *int        `json:"quantity,omitempty" db:"quantity"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// LineCodeValue returns the line code or an empty string
func (p *PartRecord) LineCodeValue() string {
	if p.LineCode == nil {
		return ""
	}
	return *p.LineCode
}

// MfrCodeValue returns the manufacturer code or an empty string
func (p *PartRecord) MfrCodeValue() string {
	if p.MfrCode == nil {
		return ""
	}
	return *p.MfrCode
}
