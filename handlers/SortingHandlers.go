package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/utils"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateSortingOutputHandler records one product pile produced by a sorting
// run. Outputs may not collectively exceed what survived into the sorting
// step, so the ledger is consulted before the insert.
// @Summary Create sorting output
// @Tags Sorting
// @Accept json
// @Produce json
// @Param request body models.SortingOutputRequest true "Sorting output"
// @Success 201 {object} models.SortingOutput
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/sorting_outputs [post]
func CreateSortingOutputHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.SortingOutputRequest
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

		var stepRunID, lotRunID int
		err = db.QueryRowContext(ctx, `
			SELECT r.step_run_id, s.lot_run_id
			FROM sorting_runs r JOIN step_runs s ON r.step_run_id = s.id
			WHERE r.id = $1`, req.SortingRunID).Scan(&stepRunID, &lotRunID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Sorting run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sorting run", "details": err.Error()})
			return
		}

		// Mass into the step minus what earlier outputs and reworks already
		// claimed bounds this output.
		avail, err := repository.CalculateAvailableQuantity(ctx, db, lotRunID, stepRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate available quantity", "details": err.Error()})
			return
		}
		sortedKg, err := repository.SortedOutputSum(ctx, db, stepRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum sorting outputs", "details": err.Error()})
			return
		}
		reworkKg, err := repository.ReworkSum(ctx, db, stepRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum reworks", "details": err.Error()})
			return
		}
		remaining := avail.AvailableQuantityKg - sortedKg - reworkKg
		if req.QuantityKg > remaining {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": fmt.Sprintf("output of %.2f kg exceeds remaining %.2f kg at sorting", req.QuantityKg, remaining),
			})
			return
		}

		output := models.SortingOutput{
			SortingRunID: req.SortingRunID,
			ProductID:    req.ProductID,
			QuantityKg:   req.QuantityKg,
		}
		err = db.QueryRowContext(ctx, `
			INSERT INTO sorting_outputs (sorting_run_id, product_id, quantity_kg, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, created_at`,
			output.SortingRunID, output.ProductID, output.QuantityKg,
		).Scan(&output.ID, &output.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sorting output", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "sorting_output",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Created sorting output %d (%.2f kg)", output.ID, output.QuantityKg),
			EventName:    "Create",
			LotRunID:     lotRunID,
		})

		c.JSON(http.StatusCreated, output)
	}
}

// GetSortingOutputsHandler lists outputs of one sorting run.
// @Summary List sorting outputs
// @Tags Sorting
// @Produce json
// @Param sorting_run_id query int true "Sorting run ID"
// @Success 200 {array} models.SortingOutput
// @Failure 400 {object} models.ErrorResponse
// @Router /api/sorting_outputs [get]
func GetSortingOutputsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		sortingRunID, err := strconv.Atoi(c.Query("sorting_run_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sorting_run_id is required"})
			return
		}

		rows, err := db.Query(`
			SELECT o.id, o.sorting_run_id, o.product_id, COALESCE(p.name, ''), o.quantity_kg, o.created_at
			FROM sorting_outputs o
			LEFT JOIN products p ON o.product_id = p.id
			WHERE o.sorting_run_id = $1 ORDER BY o.id`, sortingRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sorting outputs", "details": err.Error()})
			return
		}
		defer rows.Close()

		outputs := []models.SortingOutput{}
		for rows.Next() {
			var o models.SortingOutput
			if err := rows.Scan(&o.ID, &o.SortingRunID, &o.ProductID, &o.ProductName, &o.QuantityKg, &o.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan sorting output", "details": err.Error()})
				return
			}
			outputs = append(outputs, o)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, outputs)
	}
}

// GetRemainingMassHandler reports the derived usable mass of a sorting output.
// @Summary Remaining mass of a sorting output
// @Tags Sorting
// @Produce json
// @Param id path int true "Sorting output ID"
// @Success 200 {object} models.RemainingMassResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/sorting_outputs/{id}/remaining_mass [get]
func GetRemainingMassHandler(db *sql.DB) gin.HandlerFunc {
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

		resp, err := repository.RemainingMassForOutput(ctx, db, id)
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to derive remaining mass", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
