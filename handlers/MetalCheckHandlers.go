package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/services"
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

// CreateMetalCheckHandler appends one metal-detection attempt to a sorting
// output. Attempts are append-only and numbered per output; the newest one
// decides the packing gate. A FAIL must carry at least one rejection, a PASS
// must carry none. On FAIL the QA role gets an email alert after commit.
// @Summary Record metal check attempt
// @Tags MetalChecks
// @Accept json
// @Produce json
// @Param request body models.MetalCheckRequest true "Attempt"
// @Success 201 {object} models.MetalCheckAttempt
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/metal_checks [post]
func CreateMetalCheckHandler(db *sql.DB, emails *services.EmailService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.MetalCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.Status != models.GatePass && req.Status != models.GateFail {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be PASS or FAIL"})
			return
		}
		if req.Status == models.GateFail && len(req.Rejections) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "a FAIL attempt requires at least one rejection"})
			return
		}
		if req.Status == models.GatePass && len(req.Rejections) > 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "a PASS attempt must not carry rejections"})
			return
		}
		for _, r := range req.Rejections {
			if strings.TrimSpace(r.ObjectType) == "" {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "rejection object_type must not be empty"})
				return
			}
			if r.WeightKg <= 0 {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "rejection weight_kg must be positive"})
				return
			}
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.DefaultQueryTimeout)
		defer cancel()

		attempt, err := createMetalCheckTransaction(ctx, db, &req, userName)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record metal check", "details": err.Error()})
			return
		}

		var lotRunID int
		var batchCode string
		if err := db.QueryRow(`
			SELECT s.lot_run_id, COALESCE(b.code, '')
			FROM metal_runs m
			JOIN step_runs s ON m.step_run_id = s.id
			JOIN lot_runs l ON s.lot_run_id = l.id
			LEFT JOIN supply_batches b ON l.supply_batch_id = b.id
			WHERE m.id = $1`, req.MetalRunID).Scan(&lotRunID, &batchCode); err != nil {
			lotRunID, batchCode = 0, ""
		}

		if attempt.Status == models.GateFail && emails != nil {
			var rejectedKg float64
			for _, r := range attempt.Rejections {
				rejectedKg += r.WeightKg
			}
			go emails.SendMetalCheckAlert(batchCode, attempt.SortingOutputID, attempt.AttemptNo, rejectedKg)
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "metal_check",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Metal check attempt %d on output %d: %s", attempt.AttemptNo, attempt.SortingOutputID, attempt.Status),
			EventName:    "Create",
			LotRunID:     lotRunID,
		})

		c.JSON(http.StatusCreated, attempt)
	}
}

func createMetalCheckTransaction(ctx context.Context, db *sql.DB, req *models.MetalCheckRequest, checkedBy string) (*models.MetalCheckAttempt, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM metal_runs WHERE id = $1)`, req.MetalRunID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check metal run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("metal run %d not found", req.MetalRunID)
	}
	// Lock the parent output row so concurrent checks serialize and cannot
	// race to the same attempt number. Postgres rejects FOR UPDATE on an
	// aggregate, so the lock goes on the row and the max stays plain.
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sorting_outputs WHERE id = $1 FOR UPDATE`, req.SortingOutputID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sorting output %d not found", req.SortingOutputID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock sorting output: %w", err)
	}

	var maxAttempt int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt_no), 0) FROM metal_check_attempts
		WHERE sorting_output_id = $1`, req.SortingOutputID).Scan(&maxAttempt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attempt number: %w", err)
	}

	attempt := &models.MetalCheckAttempt{
		MetalRunID:      req.MetalRunID,
		SortingOutputID: req.SortingOutputID,
		AttemptNo:       maxAttempt + 1,
		Status:          req.Status,
		CheckedBy:       checkedBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO metal_check_attempts (metal_run_id, sorting_output_id, attempt_no, status, checked_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`,
		attempt.MetalRunID, attempt.SortingOutputID, attempt.AttemptNo, attempt.Status, attempt.CheckedBy,
	).Scan(&attempt.ID, &attempt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert attempt: %w", err)
	}

	for _, r := range req.Rejections {
		rejection := models.MetalRejection{
			AttemptID:  attempt.ID,
			ObjectType: r.ObjectType,
			WeightKg:   r.WeightKg,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO metal_rejections (attempt_id, object_type, weight_kg)
			VALUES ($1, $2, $3)
			RETURNING id`,
			rejection.AttemptID, rejection.ObjectType, rejection.WeightKg,
		).Scan(&rejection.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert rejection: %w", err)
		}
		attempt.Rejections = append(attempt.Rejections, rejection)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return attempt, nil
}

// GetGateStatusHandler reports the packing gate of a sorting output: the
// verdict of its newest metal-check attempt plus accumulated rejected mass.
// @Summary Gate status of a sorting output
// @Tags MetalChecks
// @Produce json
// @Param id path int true "Sorting output ID"
// @Success 200 {object} models.GateStatusResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/sorting_outputs/{id}/gate [get]
func GetGateStatusHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sorting output id"})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.LedgerQueryTimeout)
		defer cancel()

		mass, err := repository.RemainingMassForOutput(ctx, db, id)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sorting output", "details": err.Error()})
			return
		}

		gate, attemptNo, err := repository.GateForOutput(ctx, db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch gate status", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, models.GateStatusResponse{
			SortingOutputID: id,
			Gate:            gate,
			LatestAttemptNo: attemptNo,
			RejectedKg:      mass.RejectedKg,
		})
	}
}

// GetMetalCheckAttemptsHandler lists all attempts of one sorting output with
// their rejections, oldest first.
// @Summary List metal check attempts
// @Tags MetalChecks
// @Produce json
// @Param id path int true "Sorting output ID"
// @Success 200 {array} models.MetalCheckAttempt
// @Failure 401 {object} models.ErrorResponse
// @Router /api/sorting_outputs/{id}/metal_checks [get]
func GetMetalCheckAttemptsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sorting output id"})
			return
		}

		rows, err := db.Query(`
			SELECT id, metal_run_id, sorting_output_id, attempt_no, status, checked_by, created_at
			FROM metal_check_attempts WHERE sorting_output_id = $1 ORDER BY attempt_no`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attempts", "details": err.Error()})
			return
		}
		defer rows.Close()

		attempts := []models.MetalCheckAttempt{}
		for rows.Next() {
			var a models.MetalCheckAttempt
			if err := rows.Scan(&a.ID, &a.MetalRunID, &a.SortingOutputID, &a.AttemptNo, &a.Status, &a.CheckedBy, &a.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan attempt", "details": err.Error()})
				return
			}
			attempts = append(attempts, a)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		for i := range attempts {
			rrows, err := db.Query(`SELECT id, attempt_id, object_type, weight_kg FROM metal_rejections WHERE attempt_id = $1 ORDER BY id`, attempts[i].ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rejections", "details": err.Error()})
				return
			}
			for rrows.Next() {
				var r models.MetalRejection
				if err := rrows.Scan(&r.ID, &r.AttemptID, &r.ObjectType, &r.WeightKg); err != nil {
					rrows.Close()
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan rejection", "details": err.Error()})
					return
				}
				attempts[i].Rejections = append(attempts[i].Rejections, r)
			}
			rrows.Close()
		}

		c.JSON(http.StatusOK, attempts)
	}
}
