package models

import (
	"fmt"
	"time"
)

// SortingOutput is WIP mass of one product produced by a sorting run.
// Its stored quantity never changes; usable mass is always derived as
// quantity − metal rejections − pack entry draws.
type SortingOutput struct {
	ID           int       `json:"id" example:"4"`
	SortingRunID int       `json:"sorting_run_id" example:"7"`
	ProductID    int       `json:"product_id" example:"3"`
	ProductName  string    `json:"product_name,omitempty" example:"Hazelnut kernel 11-13mm"`
	QuantityKg   float64   `json:"quantity_kg" example:"200"`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// SortingOutputRequest is the create body for sorting outputs.
type SortingOutputRequest struct {
	SortingRunID int     `json:"sorting_run_id" binding:"required"`
	ProductID    int     `json:"product_id" binding:"required"`
	QuantityKg   float64 `json:"quantity_kg" binding:"required"`
}

// RemainingMassResponse reports derived usable mass of a sorting output.
type RemainingMassResponse struct {
	SortingOutputID int     `json:"sorting_output_id" example:"4"`
	QuantityKg      float64 `json:"quantity_kg" example:"200"`
	RejectedKg      float64 `json:"rejected_kg" example:"5"`
	PackedKg        float64 `json:"packed_kg" example:"60"`
	RemainingKg     float64 `json:"remaining_kg" example:"135"`
}

// ReworkedLot links an original supply batch to the batch spawned for
// reprocessing leftover mass from its sorting step.
type ReworkedLot struct {
	ID              int       `json:"id" example:"2"`
	StepRunID       int       `json:"step_run_id" example:"31"`
	OriginalBatchID int       `json:"original_batch_id" example:"1"`
	NewBatchID      int       `json:"new_batch_id" example:"8"`
	NewLotRunID     int       `json:"new_lot_run_id" example:"15"`
	QuantityKg      float64   `json:"quantity_kg" example:"150"`
	CreatedBy       string    `json:"created_by" example:"Nino Beridze"`
	CreatedAt       time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// ReworkRequest spawns a rework lot from an in-progress sorting step.
type ReworkRequest struct {
	StepRunID  int     `json:"step_run_id" binding:"required"`
	QuantityKg float64 `json:"quantity_kg" binding:"required"`
}

// ErrReworkExceeded rejects a rework request larger than what is left after
// sorting outputs and earlier reworks.
type ErrReworkExceeded struct {
	RequestedKg float64
	RemainingKg float64
}

func (e *ErrReworkExceeded) Error() string {
	return fmt.Sprintf("rework quantity %.2f kg exceeds remaining %.2f kg available for rework", e.RequestedKg, e.RemainingKg)
}
