package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateReworkHandler spawns a rework lot from an in-progress sorting step.
// One transaction creates the rework batch, its lot run with fresh step runs,
// and the link row; either everything lands or nothing does, so a crash can
// never leave a half-spawned rework behind.
// @Summary Spawn rework lot
// @Tags Reworks
// @Accept json
// @Produce json
// @Param request body models.ReworkRequest true "Rework"
// @Success 201 {object} models.ReworkedLot
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/reworks [post]
func CreateReworkHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.ReworkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.QuantityKg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_kg must be positive"})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.LedgerQueryTimeout)
		defer cancel()

		rework, err := createReworkTransaction(ctx, db, &req, userName)
		if err != nil {
			var exceeded *models.ErrReworkExceeded
			switch {
			case errors.As(err, &exceeded):
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":        exceeded.Error(),
					"remaining_kg": exceeded.RemainingKg,
				})
			case strings.Contains(err.Error(), "not found"):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case strings.Contains(err.Error(), "sorting step"):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to spawn rework lot", "details": err.Error()})
			}
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "rework",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Spawned rework lot %d (%.2f kg) from step run %d", rework.NewLotRunID, rework.QuantityKg, rework.StepRunID),
			EventName:    "Create",
			LotRunID:     rework.NewLotRunID,
		})

		c.JSON(http.StatusCreated, rework)
	}
}

func createReworkTransaction(ctx context.Context, db *sql.DB, req *models.ReworkRequest, createdBy string) (*models.ReworkedLot, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stepCode, stepStatus string
	var lotRunID, sequenceNo int
	err = tx.QueryRowContext(ctx,
		`SELECT step_code, status, lot_run_id, sequence_no FROM step_runs WHERE id = $1 FOR UPDATE`,
		req.StepRunID).Scan(&stepCode, &stepStatus, &lotRunID, &sequenceNo)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("step run %d not found", req.StepRunID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step run: %w", err)
	}
	if stepCode != models.StepCodeSort {
		return nil, fmt.Errorf("reworks spawn from the sorting step, step run %d is %s", req.StepRunID, stepCode)
	}
	if stepStatus != models.StepStatusInProgress {
		return nil, fmt.Errorf("sorting step must be IN_PROGRESS, got %s", stepStatus)
	}

	var originalBatchID int
	var productID int
	var shipmentID int
	err = tx.QueryRowContext(ctx, `
		SELECT b.id, b.product_id, b.shipment_id
		FROM lot_runs l JOIN supply_batches b ON l.supply_batch_id = b.id
		WHERE l.id = $1 FOR UPDATE OF b`, lotRunID).Scan(&originalBatchID, &productID, &shipmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch original batch: %w", err)
	}

	// Mass available to rework: whatever survived into sorting, minus sorted
	// outputs, minus reworks already drawn. The walk is cut off at the step
	// before sorting so sorting's own waste does not double count against it.
	cutoff := 0
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM step_runs
		WHERE lot_run_id = $1 AND sequence_no < $2
		ORDER BY sequence_no DESC, id DESC LIMIT 1`, lotRunID, sequenceNo).Scan(&cutoff)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to find preceding step: %w", err)
	}

	var intoSortKg float64
	if cutoff != 0 {
		avail, err := repository.CalculateAvailableQuantity(ctx, tx, lotRunID, cutoff)
		if err != nil {
			return nil, err
		}
		intoSortKg = avail.AvailableQuantityKg
	} else {
		if err := tx.QueryRowContext(ctx, `SELECT initial_quantity_kg FROM lot_runs WHERE id = $1`, lotRunID).Scan(&intoSortKg); err != nil {
			return nil, fmt.Errorf("failed to fetch lot run: %w", err)
		}
	}

	sortedKg, err := repository.SortedOutputSum(ctx, tx, req.StepRunID)
	if err != nil {
		return nil, err
	}
	reworkKg, err := repository.ReworkSum(ctx, tx, req.StepRunID)
	if err != nil {
		return nil, err
	}

	remaining := repository.AvailableForReworks(intoSortKg, 0, sortedKg) - reworkKg
	if req.QuantityKg > remaining {
		return nil, &models.ErrReworkExceeded{RequestedKg: req.QuantityKg, RemainingKg: remaining}
	}

	// Spawn the rework batch and immediately open its lot run.
	code := repository.GenerateBatchCode(true)
	var newBatchID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO supply_batches (code, shipment_id, product_id, quantity_kg, status, is_rework, original_batch_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, NOW(), NOW())
		RETURNING id`,
		code, shipmentID, productID, req.QuantityKg, models.BatchStatusProcessing, originalBatchID,
	).Scan(&newBatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to create rework batch: %w", err)
	}

	var newLotRunID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO lot_runs (supply_batch_id, initial_quantity_kg, status, is_rework, original_lot_run_id, started_by, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, $5, NOW(), NOW())
		RETURNING id`,
		newBatchID, req.QuantityKg, models.LotRunStatusInProgress, lotRunID, createdBy,
	).Scan(&newLotRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to create rework lot run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO step_runs (lot_run_id, step_code, step_name, sequence_no, status)
		SELECT $1, step_code, step_name, sequence_no, $2 FROM process_steps ORDER BY sequence_no`,
		newLotRunID, models.StepStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create rework step runs: %w", err)
	}

	rework := &models.ReworkedLot{
		StepRunID:       req.StepRunID,
		OriginalBatchID: originalBatchID,
		NewBatchID:      newBatchID,
		NewLotRunID:     newLotRunID,
		QuantityKg:      req.QuantityKg,
		CreatedBy:       createdBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO reworked_lots (step_run_id, original_batch_id, new_batch_id, new_lot_run_id, quantity_kg, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		rework.StepRunID, rework.OriginalBatchID, rework.NewBatchID, rework.NewLotRunID, rework.QuantityKg, rework.CreatedBy,
	).Scan(&rework.ID, &rework.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to link rework lot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return rework, nil
}

// GetReworksHandler lists reworks drawn from one step run.
// @Summary List reworks of a step run
// @Tags Reworks
// @Produce json
// @Param step_run_id query int true "Step run ID"
// @Success 200 {array} models.ReworkedLot
// @Failure 400 {object} models.ErrorResponse
// @Router /api/reworks [get]
func GetReworksHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		stepRunID, err := strconv.Atoi(c.Query("step_run_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "step_run_id is required"})
			return
		}

		rows, err := db.Query(`
			SELECT id, step_run_id, original_batch_id, new_batch_id, new_lot_run_id, quantity_kg, created_by, created_at
			FROM reworked_lots WHERE step_run_id = $1 ORDER BY id`, stepRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reworks", "details": err.Error()})
			return
		}
		defer rows.Close()

		reworks := []models.ReworkedLot{}
		for rows.Next() {
			var r models.ReworkedLot
			if err := rows.Scan(&r.ID, &r.StepRunID, &r.OriginalBatchID, &r.NewBatchID, &r.NewLotRunID, &r.QuantityKg, &r.CreatedBy, &r.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan rework", "details": err.Error()})
				return
			}
			reworks = append(reworks, r)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, reworks)
	}
}
