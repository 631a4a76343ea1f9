package models

import (
	"fmt"
	"time"
)

// Gate states for a sorting output. The attempt with the highest attempt_no
// decides the gate; outputs with no attempts yet are PENDING.
const (
	GatePending = "PENDING"
	GatePass    = "PASS"
	GateFail    = "FAIL"
)

// MetalCheckAttempt is one append-only detector pass over a sorting output.
type MetalCheckAttempt struct {
	ID              int              `json:"id" example:"5"`
	MetalRunID      int              `json:"metal_run_id" example:"9"`
	SortingOutputID int              `json:"sorting_output_id" example:"4"`
	AttemptNo       int              `json:"attempt_no" example:"2"`
	Status          string           `json:"status" example:"PASS"`
	CheckedBy       string           `json:"checked_by" example:"Nino Beridze"`
	CreatedAt       time.Time        `json:"created_at" example:"2024-01-15T10:30:00Z"`
	Rejections      []MetalRejection `json:"rejections,omitempty"`
}

// MetalRejection is one foreign object pulled out by a FAIL attempt.
// WeightKg deducts from the sorting output's usable mass.
type MetalRejection struct {
	ID         int     `json:"id" example:"2"`
	AttemptID  int     `json:"attempt_id" example:"5"`
	ObjectType string  `json:"object_type" example:"wire fragment"`
	WeightKg   float64 `json:"weight_kg" example:"0.4"`
}

// MetalRejectionRequest is one rejection row inside a metal check request.
type MetalRejectionRequest struct {
	ObjectType string  `json:"object_type" binding:"required"`
	WeightKg   float64 `json:"weight_kg" binding:"required"`
}

// MetalCheckRequest records one attempt. FAIL requires at least one rejection.
type MetalCheckRequest struct {
	MetalRunID      int                     `json:"metal_run_id" binding:"required"`
	SortingOutputID int                     `json:"sorting_output_id" binding:"required"`
	Status          string                  `json:"status" binding:"required" example:"FAIL"`
	Rejections      []MetalRejectionRequest `json:"rejections"`
}

// GateStatusResponse reports the current gate state of a sorting output.
type GateStatusResponse struct {
	SortingOutputID int     `json:"sorting_output_id" example:"4"`
	Gate            string  `json:"gate" example:"PASS"`
	LatestAttemptNo int     `json:"latest_attempt_no" example:"2"`
	RejectedKg      float64 `json:"rejected_kg" example:"0.4"`
}

// ErrGateNotPassed rejects packing against an output whose latest metal
// check is not PASS.
type ErrGateNotPassed struct {
	SortingOutputID int
	Gate            string
}

func (e *ErrGateNotPassed) Error() string {
	return fmt.Sprintf("metal check gate for sorting output %d is %s, packing requires PASS", e.SortingOutputID, e.Gate)
}
