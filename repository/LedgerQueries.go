package repository

import (
	"context"
	"database/sql"
	"fmt"

	"backend/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the ledger traversals
// can run standalone or inside a validate-then-write transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

const (
	lotRunHeaderQuery = `SELECT initial_quantity_kg FROM lot_runs WHERE id = $1`

	stepRunsQuery = `SELECT id, step_code, sequence_no, status FROM step_runs WHERE lot_run_id = $1 ORDER BY sequence_no, id`

	washingWasteQuery = `SELECT COALESCE(SUM(w.quantity_kg), 0) FROM waste_records w JOIN washing_runs r ON w.stage_run_id = r.id WHERE w.stage = 'WASHING' AND r.step_run_id = $1`

	sortingWasteQuery = `SELECT COALESCE(SUM(w.quantity_kg), 0) FROM waste_records w JOIN sorting_runs r ON w.stage_run_id = r.id WHERE w.stage = 'SORTING' AND r.step_run_id = $1`

	packagingWasteQuery = `SELECT COALESCE(SUM(w.quantity_kg), 0) FROM waste_records w JOIN packaging_runs r ON w.stage_run_id = r.id WHERE w.stage = 'PACKAGING' AND r.step_run_id = $1`

	metalRejectionsQuery = `SELECT COALESCE(SUM(mr.weight_kg), 0) FROM metal_rejections mr JOIN metal_check_attempts a ON mr.attempt_id = a.id JOIN metal_runs m ON a.metal_run_id = m.id WHERE m.step_run_id = $1`

	outputQuantityQuery = `SELECT quantity_kg FROM sorting_outputs WHERE id = $1`

	outputRejectedQuery = `SELECT COALESCE(SUM(mr.weight_kg), 0) FROM metal_rejections mr JOIN metal_check_attempts a ON mr.attempt_id = a.id WHERE a.sorting_output_id = $1`

	outputPackedQuery = `SELECT COALESCE(SUM(quantity_kg), 0) FROM pack_entries WHERE sorting_output_id = $1`

	latestAttemptQuery = `SELECT status, attempt_no FROM metal_check_attempts WHERE sorting_output_id = $1 ORDER BY attempt_no DESC LIMIT 1`

	allocatedPacksQuery = `SELECT COALESCE(SUM(total_packs), 0) FROM storage_allocations WHERE pack_entry_id = $1 AND id <> $2`

	sortedOutputSumQuery = `SELECT COALESCE(SUM(o.quantity_kg), 0) FROM sorting_outputs o JOIN sorting_runs r ON o.sorting_run_id = r.id WHERE r.step_run_id = $1`

	reworkSumQuery = `SELECT COALESCE(SUM(quantity_kg), 0) FROM reworked_lots WHERE step_run_id = $1`
)

// CalculateAvailableQuantity walks a lot run's steps in order and subtracts
// each visited stage's waste from the initial quantity. When cutoffStepRunID
// is non-zero, the walk stops after that step's position in the ordered
// result slice; the caller relies on the fetch order matching process order,
// which stepRunsQuery guarantees by sorting on sequence_no.
func CalculateAvailableQuantity(ctx context.Context, q Querier, lotRunID int, cutoffStepRunID int) (*models.AvailableQuantityResult, error) {
	var initialKg float64
	err := q.QueryRowContext(ctx, lotRunHeaderQuery, lotRunID).Scan(&initialKg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("lot run %d not found", lotRunID)
		}
		return nil, fmt.Errorf("failed to fetch lot run %d: %w", lotRunID, err)
	}

	steps, err := fetchStepRuns(ctx, q, lotRunID)
	if err != nil {
		return nil, err
	}

	if cutoffStepRunID != 0 {
		for i, s := range steps {
			if s.ID == cutoffStepRunID {
				steps = steps[:i+1]
				break
			}
		}
	}

	result := &models.AvailableQuantityResult{
		LotRunID:          lotRunID,
		InitialQuantityKg: initialKg,
	}

	for _, s := range steps {
		switch s.StepCode {
		case models.StepCodeWash:
			kg, err := sumScalar(ctx, q, washingWasteQuery, s.ID)
			if err != nil {
				return nil, err
			}
			result.Breakdown.WashingWasteKg += kg
		case models.StepCodeSort:
			kg, err := sumScalar(ctx, q, sortingWasteQuery, s.ID)
			if err != nil {
				return nil, err
			}
			result.Breakdown.SortingWasteKg += kg
		case models.StepCodeMetal:
			kg, err := sumScalar(ctx, q, metalRejectionsQuery, s.ID)
			if err != nil {
				return nil, err
			}
			result.Breakdown.MetalRejectedKg += kg
		case models.StepCodePack:
			kg, err := sumScalar(ctx, q, packagingWasteQuery, s.ID)
			if err != nil {
				return nil, err
			}
			result.Breakdown.PackagingWasteKg += kg
		}
		// Unknown step codes contribute nothing, same as missing stage rows.
	}

	result.TotalWasteKg = result.Breakdown.WashingWasteKg + result.Breakdown.SortingWasteKg +
		result.Breakdown.MetalRejectedKg + result.Breakdown.PackagingWasteKg
	result.AvailableQuantityKg = AvailableQuantity(initialKg, result.TotalWasteKg)

	return result, nil
}

func fetchStepRuns(ctx context.Context, q Querier, lotRunID int) ([]models.StepRun, error) {
	rows, err := q.QueryContext(ctx, stepRunsQuery, lotRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step runs for lot run %d: %w", lotRunID, err)
	}
	defer rows.Close()

	var steps []models.StepRun
	for rows.Next() {
		var s models.StepRun
		if err := rows.Scan(&s.ID, &s.StepCode, &s.SequenceNo, &s.Status); err != nil {
			return nil, err
		}
		s.LotRunID = lotRunID
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func sumScalar(ctx context.Context, q Querier, query string, id int) (float64, error) {
	var kg float64
	if err := q.QueryRowContext(ctx, query, id).Scan(&kg); err != nil {
		return 0, err
	}
	return kg, nil
}

// RemainingMassForOutput derives the usable mass of a sorting output.
// Nothing is ever stored for the remainder; it is recomputed from the
// output quantity, the rejection total and the pack entry draws each time.
func RemainingMassForOutput(ctx context.Context, q Querier, outputID int) (*models.RemainingMassResponse, error) {
	var quantityKg float64
	err := q.QueryRowContext(ctx, outputQuantityQuery, outputID).Scan(&quantityKg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sorting output %d not found", outputID)
		}
		return nil, fmt.Errorf("failed to fetch sorting output %d: %w", outputID, err)
	}

	rejectedKg, err := sumScalar(ctx, q, outputRejectedQuery, outputID)
	if err != nil {
		return nil, err
	}
	packedKg, err := sumScalar(ctx, q, outputPackedQuery, outputID)
	if err != nil {
		return nil, err
	}

	return &models.RemainingMassResponse{
		SortingOutputID: outputID,
		QuantityKg:      quantityKg,
		RejectedKg:      rejectedKg,
		PackedKg:        packedKg,
		RemainingKg:     RemainingMass(quantityKg, rejectedKg, packedKg),
	}, nil
}

// GateForOutput returns the latest metal-check verdict for a sorting output.
func GateForOutput(ctx context.Context, q Querier, outputID int) (gate string, attemptNo int, err error) {
	err = q.QueryRowContext(ctx, latestAttemptQuery, outputID).Scan(&gate, &attemptNo)
	if err == sql.ErrNoRows {
		return models.GatePending, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch metal checks for output %d: %w", outputID, err)
	}
	return gate, attemptNo, nil
}

// AllocatedPacks sums the packs already assigned for a pack entry. Pass
// excludeID 0 on create; on edit pass the allocation being edited so it is
// left out of the sum.
func AllocatedPacks(ctx context.Context, q Querier, packEntryID, excludeID int) (int, error) {
	var allocated int
	if err := q.QueryRowContext(ctx, allocatedPacksQuery, packEntryID, excludeID).Scan(&allocated); err != nil {
		return 0, fmt.Errorf("failed to sum allocations for pack entry %d: %w", packEntryID, err)
	}
	return allocated, nil
}

// SortedOutputSum totals the output mass a sorting step run has produced.
func SortedOutputSum(ctx context.Context, q Querier, stepRunID int) (float64, error) {
	return sumScalar(ctx, q, sortedOutputSumQuery, stepRunID)
}

// ReworkSum totals the rework mass already drawn from a sorting step run.
func ReworkSum(ctx context.Context, q Querier, stepRunID int) (float64, error) {
	return sumScalar(ctx, q, reworkSumQuery, stepRunID)
}
