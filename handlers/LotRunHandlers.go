package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/utils"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// StartLotRunHandler opens processing on a supply batch: one lot run plus a
// step run per template step, all in one transaction. The batch's intake mass
// is copied onto the run as its immutable initial quantity.
// @Summary Start lot run
// @Tags LotRuns
// @Accept json
// @Produce json
// @Param request body models.StartLotRunRequest true "Batch to start"
// @Success 201 {object} models.LotRun
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/lot_runs [post]
func StartLotRunHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.StartLotRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.DefaultQueryTimeout)
		defer cancel()

		lotRun, err := startLotRunTransaction(ctx, db, req.SupplyBatchID, userName)
		if err != nil {
			switch {
			case strings.Contains(err.Error(), "not found"):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case strings.Contains(err.Error(), "already"):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start lot run", "details": err.Error()})
			}
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "lot_run",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Started lot run on batch %s", lotRun.BatchCode),
			EventName:    "Create",
			LotRunID:     lotRun.ID,
		})

		c.JSON(http.StatusCreated, lotRun)
	}
}

func startLotRunTransaction(ctx context.Context, db *sql.DB, batchID int, startedBy string) (*models.LotRun, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var batchCode, batchStatus string
	var quantityKg float64
	var isRework bool
	err = tx.QueryRowContext(ctx,
		`SELECT code, status, quantity_kg, is_rework FROM supply_batches WHERE id = $1 FOR UPDATE`,
		batchID).Scan(&batchCode, &batchStatus, &quantityKg, &isRework)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("supply batch %d not found", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch supply batch: %w", err)
	}
	if batchStatus != models.BatchStatusUnprocessed {
		return nil, fmt.Errorf("supply batch %s is already %s", batchCode, batchStatus)
	}

	lotRun := &models.LotRun{
		SupplyBatchID:     batchID,
		BatchCode:         batchCode,
		InitialQuantityKg: quantityKg,
		Status:            models.LotRunStatusInProgress,
		IsRework:          isRework,
		StartedBy:         startedBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO lot_runs (supply_batch_id, initial_quantity_kg, status, is_rework, started_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		batchID, quantityKg, lotRun.Status, isRework, startedBy,
	).Scan(&lotRun.ID, &lotRun.CreatedAt, &lotRun.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create lot run: %w", err)
	}

	// Stamp step runs out of the process template, in template order.
	rows, err := tx.QueryContext(ctx,
		`SELECT step_code, step_name, sequence_no FROM process_steps ORDER BY sequence_no`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch process template: %w", err)
	}
	var template []models.ProcessStep
	for rows.Next() {
		var s models.ProcessStep
		if err := rows.Scan(&s.StepCode, &s.StepName, &s.SequenceNo); err != nil {
			rows.Close()
			return nil, err
		}
		template = append(template, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(template) == 0 {
		return nil, fmt.Errorf("process template is empty")
	}

	for _, s := range template {
		var sr models.StepRun
		err = tx.QueryRowContext(ctx, `
			INSERT INTO step_runs (lot_run_id, step_code, step_name, sequence_no, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			lotRun.ID, s.StepCode, s.StepName, s.SequenceNo, models.StepStatusPending,
		).Scan(&sr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create step run %s: %w", s.StepCode, err)
		}
		sr.LotRunID = lotRun.ID
		sr.StepCode = s.StepCode
		sr.StepName = s.StepName
		sr.SequenceNo = s.SequenceNo
		sr.Status = models.StepStatusPending
		lotRun.Steps = append(lotRun.Steps, sr)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE supply_batches SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.BatchStatusProcessing, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark batch processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return lotRun, nil
}

// GetAllLotRunsHandler lists lot runs, newest first.
// @Summary List lot runs
// @Tags LotRuns
// @Produce json
// @Param status query string false "IN_PROGRESS or COMPLETED"
// @Success 200 {array} models.LotRun
// @Failure 401 {object} models.ErrorResponse
// @Router /api/lot_runs [get]
func GetAllLotRunsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		query := `
			SELECT l.id, l.supply_batch_id, COALESCE(b.code, ''), l.initial_quantity_kg,
			       l.status, l.is_rework, l.original_lot_run_id, l.started_by, l.created_at, l.updated_at
			FROM lot_runs l
			LEFT JOIN supply_batches b ON l.supply_batch_id = b.id`
		args := []interface{}{}
		if status := c.Query("status"); status != "" {
			query += " WHERE l.status = $1"
			args = append(args, status)
		}
		query += " ORDER BY l.created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lot runs", "details": err.Error()})
			return
		}
		defer rows.Close()

		var runs []models.LotRun
		for rows.Next() {
			var l models.LotRun
			if err := rows.Scan(&l.ID, &l.SupplyBatchID, &l.BatchCode, &l.InitialQuantityKg,
				&l.Status, &l.IsRework, &l.OriginalLotRunID, &l.StartedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan lot run", "details": err.Error()})
				return
			}
			runs = append(runs, l)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, runs)
	}
}

// GetLotRunHandler fetches one lot run with its ordered step runs.
// @Summary Get lot run
// @Tags LotRuns
// @Produce json
// @Param id path int true "Lot run ID"
// @Success 200 {object} models.LotRun
// @Failure 404 {object} models.ErrorResponse
// @Router /api/lot_runs/{id} [get]
func GetLotRunHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot run id"})
			return
		}

		var l models.LotRun
		err = db.QueryRow(`
			SELECT l.id, l.supply_batch_id, COALESCE(b.code, ''), l.initial_quantity_kg,
			       l.status, l.is_rework, l.original_lot_run_id, l.started_by, l.created_at, l.updated_at
			FROM lot_runs l
			LEFT JOIN supply_batches b ON l.supply_batch_id = b.id
			WHERE l.id = $1`, id,
		).Scan(&l.ID, &l.SupplyBatchID, &l.BatchCode, &l.InitialQuantityKg,
			&l.Status, &l.IsRework, &l.OriginalLotRunID, &l.StartedBy, &l.CreatedAt, &l.UpdatedAt)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lot run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lot run", "details": err.Error()})
			return
		}

		rows, err := db.Query(`
			SELECT id, step_code, COALESCE(step_name, ''), sequence_no, status, started_at, finished_at
			FROM step_runs WHERE lot_run_id = $1 ORDER BY sequence_no, id`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch step runs", "details": err.Error()})
			return
		}
		defer rows.Close()

		for rows.Next() {
			var s models.StepRun
			if err := rows.Scan(&s.ID, &s.StepCode, &s.StepName, &s.SequenceNo, &s.Status, &s.StartedAt, &s.FinishedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan step run", "details": err.Error()})
				return
			}
			s.LotRunID = id
			l.Steps = append(l.Steps, s)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, l)
	}
}

// legalStepTransition encodes the step run state machine.
func legalStepTransition(from, to string) bool {
	switch from {
	case models.StepStatusPending:
		return to == models.StepStatusInProgress || to == models.StepStatusSkipped
	case models.StepStatusInProgress:
		return to == models.StepStatusCompleted
	default:
		return false
	}
}

// UpdateStepStatusHandler moves one step run through its lifecycle. When the
// final step completes the lot run is closed and the batch marked PROCESSED;
// those follow-up writes are best effort and reported via a warning so the
// step transition itself is never rolled back by them.
// @Summary Update step status
// @Tags LotRuns
// @Accept json
// @Produce json
// @Param id path int true "Step run ID"
// @Param request body models.StepStatusRequest true "New status"
// @Success 200 {object} models.StepRun
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/step_runs/{id}/status [put]
func UpdateStepStatusHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid step run id"})
			return
		}

		var req models.StepStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var sr models.StepRun
		err = db.QueryRow(`
			SELECT id, lot_run_id, step_code, sequence_no, status
			FROM step_runs WHERE id = $1`, id,
		).Scan(&sr.ID, &sr.LotRunID, &sr.StepCode, &sr.SequenceNo, &sr.Status)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Step run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch step run", "details": err.Error()})
			return
		}

		if !legalStepTransition(sr.Status, req.Status) {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("illegal transition %s -> %s", sr.Status, req.Status),
			})
			return
		}

		// Steps run strictly in order: a step may only start once every
		// earlier step is COMPLETED or SKIPPED.
		if req.Status == models.StepStatusInProgress {
			var blockers int
			err = db.QueryRow(`
				SELECT COUNT(*) FROM step_runs
				WHERE lot_run_id = $1 AND sequence_no < $2 AND status NOT IN ($3, $4)`,
				sr.LotRunID, sr.SequenceNo, models.StepStatusCompleted, models.StepStatusSkipped,
			).Scan(&blockers)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check step order", "details": err.Error()})
				return
			}
			if blockers > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "earlier steps are not finished yet"})
				return
			}
		}

		now := time.Now()
		switch req.Status {
		case models.StepStatusInProgress:
			_, err = db.Exec(`UPDATE step_runs SET status = $1, started_at = $2 WHERE id = $3`, req.Status, now, id)
		case models.StepStatusCompleted:
			_, err = db.Exec(`UPDATE step_runs SET status = $1, finished_at = $2 WHERE id = $3`, req.Status, now, id)
		default:
			_, err = db.Exec(`UPDATE step_runs SET status = $1 WHERE id = $2`, req.Status, id)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update step run", "details": err.Error()})
			return
		}
		sr.Status = req.Status

		var warning string
		if req.Status == models.StepStatusCompleted || req.Status == models.StepStatusSkipped {
			if warning = closeLotRunIfDone(db, sr.LotRunID); warning != "" {
				c.Header("X-Warning", warning)
			}
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    now,
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "step_run",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Step %s -> %s", sr.StepCode, req.Status),
			EventName:    "Update",
			LotRunID:     sr.LotRunID,
		})

		resp := gin.H{"step_run": sr}
		if warning != "" {
			resp["warning"] = warning
		}
		c.JSON(http.StatusOK, resp)
	}
}

// closeLotRunIfDone marks a lot run COMPLETED and its batch PROCESSED once
// every step has reached a terminal status. Returns a warning string on
// partial failure, empty on success or when steps remain.
func closeLotRunIfDone(db *sql.DB, lotRunID int) string {
	var open int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM step_runs
		WHERE lot_run_id = $1 AND status NOT IN ($2, $3)`,
		lotRunID, models.StepStatusCompleted, models.StepStatusSkipped).Scan(&open)
	if err != nil {
		return "failed to check remaining steps: " + err.Error()
	}
	if open > 0 {
		return ""
	}

	if _, err := db.Exec(`UPDATE lot_runs SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.LotRunStatusCompleted, lotRunID); err != nil {
		return "failed to close lot run: " + err.Error()
	}
	if _, err := db.Exec(`
		UPDATE supply_batches SET status = $1, updated_at = NOW()
		WHERE id = (SELECT supply_batch_id FROM lot_runs WHERE id = $2)`,
		models.BatchStatusProcessed, lotRunID); err != nil {
		return "lot run closed but batch status update failed: " + err.Error()
	}
	return ""
}

// GetAvailableQuantityHandler answers the quantity ledger for a lot run. The
// optional up_to_step_run query parameter truncates the waste walk at that
// step's position in process order.
// @Summary Available quantity
// @Tags LotRuns
// @Produce json
// @Param id path int true "Lot run ID"
// @Param up_to_step_run query int false "Cut off after this step run"
// @Success 200 {object} models.AvailableQuantityResult
// @Failure 404 {object} models.ErrorResponse
// @Router /api/lot_runs/{id}/available_quantity [get]
func GetAvailableQuantityHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot run id"})
			return
		}

		cutoff := 0
		if raw := c.Query("up_to_step_run"); raw != "" {
			cutoff, err = strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid up_to_step_run"})
				return
			}
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.LedgerQueryTimeout)
		defer cancel()

		result, err := repository.CalculateAvailableQuantity(ctx, db, id, cutoff)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate available quantity", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
