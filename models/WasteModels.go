package models

import "time"

// Waste source stages. Each stage has its own run table hanging off a step
// run; waste records attach to the stage run, not the step run directly.
const (
	StageWashing   = "WASHING"
	StageSorting   = "SORTING"
	StageMetal     = "METAL"
	StagePackaging = "PACKAGING"
)

// StageRun is one stage-specific run row (washing_runs, sorting_runs,
// metal_runs or packaging_runs) tied to exactly one step run.
type StageRun struct {
	ID        int       `json:"id" example:"7"`
	StepRunID int       `json:"step_run_id" example:"31"`
	Stage     string    `json:"stage" example:"WASHING"`
	Operator  string    `json:"operator" example:"Nino Beridze"`
	Remarks   string    `json:"remarks" example:""`
	CreatedAt time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// StageRunRequest creates a stage run under a step run.
type StageRunRequest struct {
	StepRunID int    `json:"step_run_id" binding:"required"`
	Remarks   string `json:"remarks"`
}

// WasteRecord is one (stage, type, quantity) tuple attributable to a stage run.
type WasteRecord struct {
	ID         int       `json:"id" example:"3"`
	Stage      string    `json:"stage" example:"SORTING"`
	StageRunID int       `json:"stage_run_id" example:"7"`
	WasteType  string    `json:"waste_type" example:"shell fragments"`
	QuantityKg float64   `json:"quantity_kg" example:"12.5"`
	RecordedBy string    `json:"recorded_by" example:"Nino Beridze"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

// WasteRecordRequest is the create body for waste records.
type WasteRecordRequest struct {
	Stage      string  `json:"stage" binding:"required" example:"SORTING"`
	StageRunID int     `json:"stage_run_id" binding:"required"`
	WasteType  string  `json:"waste_type" binding:"required"`
	QuantityKg float64 `json:"quantity_kg" binding:"required"`
}
