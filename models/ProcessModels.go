package models

import "time"

// Process step codes, in the default template order.
const (
	StepCodeWash  = "WASH"
	StepCodeSort  = "SORT"
	StepCodeMetal = "METAL"
	StepCodePack  = "PACK"
)

// Step run lifecycle.
const (
	StepStatusPending    = "PENDING"
	StepStatusInProgress = "IN_PROGRESS"
	StepStatusCompleted  = "COMPLETED"
	StepStatusSkipped    = "SKIPPED"
)

// Lot run lifecycle.
const (
	LotRunStatusInProgress = "IN_PROGRESS"
	LotRunStatusCompleted  = "COMPLETED"
)

// ProcessStep is one row of the process template; step runs are stamped out
// of the template when a lot run starts.
type ProcessStep struct {
	ID         int    `json:"id" example:"1"`
	StepCode   string `json:"step_code" example:"WASH"`
	StepName   string `json:"step_name" example:"Washing"`
	SequenceNo int    `json:"sequence_no" example:"1"`
}

// LotRun is one supply batch's journey through the ordered process steps.
// InitialQuantityKg is copied from the supply batch at creation and never
// updated afterwards; everything downstream is derived from it.
type LotRun struct {
	ID                int       `json:"id" example:"12"`
	SupplyBatchID     int       `json:"supply_batch_id" example:"1"`
	BatchCode         string    `json:"batch_code,omitempty" example:"NB-24017"`
	InitialQuantityKg float64   `json:"initial_quantity_kg" example:"500"`
	Status            string    `json:"status" example:"IN_PROGRESS"`
	IsRework          bool      `json:"is_rework" example:"false"`
	OriginalLotRunID  *int      `json:"original_lot_run_id,omitempty"`
	StartedBy         string    `json:"started_by" example:"Nino Beridze"`
	CreatedAt         time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt         time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	Steps             []StepRun `json:"steps,omitempty"`
}

// StepRun is one instance of a process step inside a lot run.
type StepRun struct {
	ID         int        `json:"id" example:"31"`
	LotRunID   int        `json:"lot_run_id" example:"12"`
	StepCode   string     `json:"step_code" example:"SORT"`
	StepName   string     `json:"step_name,omitempty" example:"Sorting"`
	SequenceNo int        `json:"sequence_no" example:"2"`
	Status     string     `json:"status" example:"PENDING"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StartLotRunRequest starts processing of a supply batch.
type StartLotRunRequest struct {
	SupplyBatchID int `json:"supply_batch_id" binding:"required"`
}

// StepStatusRequest moves a step run to a new status.
type StepStatusRequest struct {
	Status string `json:"status" binding:"required" example:"IN_PROGRESS"`
}

// WasteBreakdown splits accumulated waste by source stage.
type WasteBreakdown struct {
	WashingWasteKg   float64 `json:"washing_waste_kg" example:"50"`
	SortingWasteKg   float64 `json:"sorting_waste_kg" example:"20"`
	MetalRejectedKg  float64 `json:"metal_rejected_kg" example:"0"`
	PackagingWasteKg float64 `json:"packaging_waste_kg" example:"0"`
}

// AvailableQuantityResult is the quantity-ledger answer for one lot run,
// optionally cut off at a step run.
type AvailableQuantityResult struct {
	LotRunID            int            `json:"lot_run_id" example:"12"`
	InitialQuantityKg   float64        `json:"initial_quantity_kg" example:"1000"`
	TotalWasteKg        float64        `json:"total_waste_kg" example:"70"`
	AvailableQuantityKg float64        `json:"available_quantity_kg" example:"930"`
	Breakdown           WasteBreakdown `json:"breakdown"`
}

// ProcessNote is an operator note attached to a step of a lot run. Notes are
// persisted through the debounced autosave service, last write wins.
type ProcessNote struct {
	ID        int       `json:"id" example:"1"`
	LotRunID  int       `json:"lot_run_id" example:"12"`
	StepCode  string    `json:"step_code" example:"SORT"`
	Content   string    `json:"content" example:"Heavy dust in this batch"`
	UpdatedBy string    `json:"updated_by" example:"Nino Beridze"`
	UpdatedAt time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// ProcessNoteRequest is the autosave body for process notes.
type ProcessNoteRequest struct {
	LotRunID int    `json:"lot_run_id" binding:"required"`
	StepCode string `json:"step_code" binding:"required"`
	Content  string `json:"content"`
}
