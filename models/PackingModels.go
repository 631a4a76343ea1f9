package models

import (
	"fmt"
	"time"
)

// Storage types for allocations.
const (
	StorageTypeBox         = "BOX"
	StorageTypeBag         = "BAG"
	StorageTypeShopPacking = "SHOP_PACKING"
)

// PackSizeOptionsKg is the discrete catalog of allowed pack sizes. Operators
// pick from this set, never free-form values.
var PackSizeOptionsKg = []float64{0.1, 0.2, 0.25, 0.5, 1, 2, 5, 10, 25}

// PackEntry commits sorting-output mass into packs of a chosen size.
// PackCount and RemainderKg are computed once at creation and persisted, so
// later pack-size catalog changes never rewrite history.
type PackEntry struct {
	ID              int       `json:"id" example:"6"`
	SortingOutputID int       `json:"sorting_output_id" example:"4"`
	ProductID       int       `json:"product_id" example:"3"`
	ProductName     string    `json:"product_name,omitempty" example:"Hazelnut kernel 11-13mm"`
	PackingType     string    `json:"packing_type,omitempty" example:"vacuum"`
	PackSizeKg      float64   `json:"pack_size_kg" example:"5"`
	QuantityKg      float64   `json:"quantity_kg" example:"60"`
	PackCount       int       `json:"pack_count" example:"12"`
	RemainderKg     float64   `json:"remainder_kg" example:"0"`
	CreatedBy       string    `json:"created_by" example:"Nino Beridze"`
	CreatedAt       time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// PackEntryRequest is the create body for pack entries.
type PackEntryRequest struct {
	SortingOutputID int     `json:"sorting_output_id" binding:"required"`
	ProductID       int     `json:"product_id" binding:"required"`
	PackingType     string  `json:"packing_type"`
	PackSizeKg      float64 `json:"pack_size_kg" binding:"required"`
	QuantityKg      float64 `json:"quantity_kg" binding:"required"`
}

// StorageAllocation assigns produced packs of one pack entry to a storage unit type.
type StorageAllocation struct {
	ID           int       `json:"id" example:"3"`
	PackEntryID  int       `json:"pack_entry_id" example:"6"`
	StorageType  string    `json:"storage_type" example:"BOX"`
	UnitsCount   int       `json:"units_count" example:"8"`
	PacksPerUnit int       `json:"packs_per_unit" example:"10"`
	TotalPacks   int       `json:"total_packs" example:"80"`
	TotalKg      float64   `json:"total_kg" example:"400"`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt    time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// StorageAllocationRequest is the create/update body for storage allocations.
type StorageAllocationRequest struct {
	PackEntryID  int    `json:"pack_entry_id" binding:"required"`
	StorageType  string `json:"storage_type" binding:"required" example:"BOX"`
	UnitsCount   int    `json:"units_count" binding:"required"`
	PacksPerUnit int    `json:"packs_per_unit" binding:"required"`
}

// ErrMassExceeded rejects a pack entry drawing more than the output's
// remaining usable mass.
type ErrMassExceeded struct {
	RequestedKg float64
	RemainingKg float64
}

func (e *ErrMassExceeded) Error() string {
	return fmt.Sprintf("quantity %.2f kg cannot exceed remaining %.2f kg", e.RequestedKg, e.RemainingKg)
}

// ErrPackCapacityExceeded rejects an allocation past the entry's pack count.
type ErrPackCapacityExceeded struct {
	RequestedPacks int
	RemainingPacks int
}

func (e *ErrPackCapacityExceeded) Error() string {
	return fmt.Sprintf("allocation of %d packs exceeds remaining %d packs", e.RequestedPacks, e.RemainingPacks)
}
