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

// CreatePackEntryHandler commits sorting-output mass into packs. The gate and
// remaining-mass checks re-run server-side inside the transaction; whatever
// the terminal showed, the database is the source of truth. Pack count and
// remainder are computed once here and persisted.
// @Summary Create pack entry
// @Tags Packing
// @Accept json
// @Produce json
// @Param request body models.PackEntryRequest true "Pack entry"
// @Success 201 {object} models.PackEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/pack_entries [post]
func CreatePackEntryHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.PackEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.QuantityKg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_kg must be positive"})
			return
		}
		if !repository.IsAllowedPackSize(req.PackSizeKg) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   fmt.Sprintf("pack size %.3f kg is not in the catalog", req.PackSizeKg),
				"options": models.PackSizeOptionsKg,
			})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.LedgerQueryTimeout)
		defer cancel()

		entry, err := createPackEntryTransaction(ctx, db, &req, userName)
		if err != nil {
			var gateErr *models.ErrGateNotPassed
			var massErr *models.ErrMassExceeded
			switch {
			case errors.As(err, &gateErr):
				c.JSON(http.StatusConflict, gin.H{"error": gateErr.Error(), "gate": gateErr.Gate})
			case errors.As(err, &massErr):
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":        massErr.Error(),
					"remaining_kg": massErr.RemainingKg,
				})
			case strings.Contains(err.Error(), "not found"):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create pack entry", "details": err.Error()})
			}
			return
		}

		var lotRunID int
		if err := db.QueryRow(`
			SELECT s.lot_run_id FROM sorting_outputs o
			JOIN sorting_runs r ON o.sorting_run_id = r.id
			JOIN step_runs s ON r.step_run_id = s.id
			WHERE o.id = $1`, entry.SortingOutputID).Scan(&lotRunID); err != nil {
			lotRunID = 0
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "pack_entry",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Packed %.2f kg into %d x %.2f kg packs", entry.QuantityKg, entry.PackCount, entry.PackSizeKg),
			EventName:    "Create",
			LotRunID:     lotRunID,
		})

		c.JSON(http.StatusCreated, entry)
	}
}

// createPackEntryTransaction runs gate check, mass check, breakdown and
// insert atomically. The output row is locked so two terminals cannot both
// draw from the same remaining mass.
func createPackEntryTransaction(ctx context.Context, db *sql.DB, req *models.PackEntryRequest, createdBy string) (*models.PackEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var outputKg float64
	err = tx.QueryRowContext(ctx, `SELECT quantity_kg FROM sorting_outputs WHERE id = $1 FOR UPDATE`, req.SortingOutputID).Scan(&outputKg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sorting output %d not found", req.SortingOutputID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sorting output: %w", err)
	}

	gate, _, err := repository.GateForOutput(ctx, tx, req.SortingOutputID)
	if err != nil {
		return nil, err
	}
	if gate != models.GatePass {
		return nil, &models.ErrGateNotPassed{SortingOutputID: req.SortingOutputID, Gate: gate}
	}

	mass, err := repository.RemainingMassForOutput(ctx, tx, req.SortingOutputID)
	if err != nil {
		return nil, err
	}
	if req.QuantityKg > mass.RemainingKg {
		return nil, &models.ErrMassExceeded{RequestedKg: req.QuantityKg, RemainingKg: mass.RemainingKg}
	}

	packCount, remainderKg, err := repository.PackBreakdown(req.QuantityKg, req.PackSizeKg)
	if err != nil {
		return nil, err
	}

	entry := &models.PackEntry{
		SortingOutputID: req.SortingOutputID,
		ProductID:       req.ProductID,
		PackingType:     req.PackingType,
		PackSizeKg:      req.PackSizeKg,
		QuantityKg:      req.QuantityKg,
		PackCount:       packCount,
		RemainderKg:     remainderKg,
		CreatedBy:       createdBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO pack_entries (sorting_output_id, product_id, packing_type, pack_size_kg, quantity_kg, pack_count, remainder_kg, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`,
		entry.SortingOutputID, entry.ProductID, entry.PackingType, entry.PackSizeKg,
		entry.QuantityKg, entry.PackCount, entry.RemainderKg, entry.CreatedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pack entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return entry, nil
}

// GetPackEntriesHandler lists pack entries of one sorting output.
// @Summary List pack entries
// @Tags Packing
// @Produce json
// @Param sorting_output_id query int true "Sorting output ID"
// @Success 200 {array} models.PackEntry
// @Failure 400 {object} models.ErrorResponse
// @Router /api/pack_entries [get]
func GetPackEntriesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		outputID, err := strconv.Atoi(c.Query("sorting_output_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sorting_output_id is required"})
			return
		}

		rows, err := db.Query(`
			SELECT e.id, e.sorting_output_id, e.product_id, COALESCE(p.name, ''), COALESCE(e.packing_type, ''),
			       e.pack_size_kg, e.quantity_kg, e.pack_count, e.remainder_kg, e.created_by, e.created_at
			FROM pack_entries e
			LEFT JOIN products p ON e.product_id = p.id
			WHERE e.sorting_output_id = $1 ORDER BY e.id`, outputID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pack entries", "details": err.Error()})
			return
		}
		defer rows.Close()

		entries := []models.PackEntry{}
		for rows.Next() {
			var e models.PackEntry
			if err := rows.Scan(&e.ID, &e.SortingOutputID, &e.ProductID, &e.ProductName, &e.PackingType,
				&e.PackSizeKg, &e.QuantityKg, &e.PackCount, &e.RemainderKg, &e.CreatedBy, &e.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan pack entry", "details": err.Error()})
				return
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, entries)
	}
}

// GetPackSizeOptionsHandler returns the discrete pack size catalog.
// @Summary Pack size options
// @Tags Packing
// @Produce json
// @Success 200 {array} number
// @Router /api/pack_sizes [get]
func GetPackSizeOptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pack_sizes_kg": models.PackSizeOptionsKg})
	}
}
