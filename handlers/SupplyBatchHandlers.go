package handlers

import (
	"backend/models"
	"backend/repository"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateSupplyBatchHandler splits part of a shipment into a new supply batch.
// The batch code is generated server-side and the batch starts UNPROCESSED.
// @Summary Create supply batch
// @Tags SupplyBatches
// @Accept json
// @Produce json
// @Param request body models.SupplyBatchRequest true "Supply batch"
// @Success 201 {object} models.SupplyBatch
// @Failure 400 {object} models.ErrorResponse
// @Router /api/supply_batches [post]
func CreateSupplyBatchHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.SupplyBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.QuantityKg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_kg must be positive"})
			return
		}

		// Batches drawn from a shipment must not exceed its delivered mass.
		var totalMassKg, alreadyBatchedKg float64
		err = db.QueryRow(`SELECT total_mass_kg FROM shipments WHERE id = $1`, req.ShipmentID).Scan(&totalMassKg)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Shipment not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch shipment", "details": err.Error()})
			return
		}
		err = db.QueryRow(`SELECT COALESCE(SUM(quantity_kg), 0) FROM supply_batches WHERE shipment_id = $1 AND is_rework = false`, req.ShipmentID).Scan(&alreadyBatchedKg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum shipment batches", "details": err.Error()})
			return
		}
		if alreadyBatchedKg+req.QuantityKg > totalMassKg {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "batch quantity exceeds unbatched shipment mass",
				"details": gin.H{
					"shipment_total_kg":   totalMassKg,
					"already_batched_kg":  alreadyBatchedKg,
					"requested_batch_kg":  req.QuantityKg,
					"remaining_unbatched": totalMassKg - alreadyBatchedKg,
				},
			})
			return
		}

		batch := models.SupplyBatch{
			Code:       repository.GenerateBatchCode(false),
			ShipmentID: req.ShipmentID,
			ProductID:  req.ProductID,
			QuantityKg: req.QuantityKg,
			Status:     models.BatchStatusUnprocessed,
		}
		err = db.QueryRow(`
			INSERT INTO supply_batches (code, shipment_id, product_id, quantity_kg, status, is_rework, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			batch.Code, batch.ShipmentID, batch.ProductID, batch.QuantityKg, batch.Status,
		).Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create supply batch", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "supply_batch",
			IPAddress:    session.IPAddress,
			Description:  "Created supply batch " + batch.Code,
			EventName:    "Create",
		})

		c.JSON(http.StatusCreated, batch)
	}
}

// GetSupplyBatchesHandler lists supply batches, optionally by status.
// @Summary List supply batches
// @Tags SupplyBatches
// @Produce json
// @Param status query string false "UNPROCESSED, PROCESSING or PROCESSED"
// @Success 200 {array} models.SupplyBatch
// @Failure 401 {object} models.ErrorResponse
// @Router /api/supply_batches [get]
func GetSupplyBatchesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		query := `
			SELECT b.id, b.code, b.shipment_id, b.product_id, COALESCE(p.name, ''),
			       b.quantity_kg, b.status, b.is_rework, b.original_batch_id, b.created_at, b.updated_at
			FROM supply_batches b
			LEFT JOIN products p ON b.product_id = p.id`
		args := []interface{}{}
		if status := c.Query("status"); status != "" {
			query += " WHERE b.status = $1"
			args = append(args, status)
		}
		query += " ORDER BY b.created_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch supply batches", "details": err.Error()})
			return
		}
		defer rows.Close()

		var batches []models.SupplyBatch
		for rows.Next() {
			var b models.SupplyBatch
			if err := rows.Scan(&b.ID, &b.Code, &b.ShipmentID, &b.ProductID, &b.ProductName,
				&b.QuantityKg, &b.Status, &b.IsRework, &b.OriginalBatchID, &b.CreatedAt, &b.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan supply batch", "details": err.Error()})
				return
			}
			batches = append(batches, b)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, batches)
	}
}

// GetSupplyBatchHandler fetches one supply batch by id.
// @Summary Get supply batch
// @Tags SupplyBatches
// @Produce json
// @Param id path int true "Batch ID"
// @Success 200 {object} models.SupplyBatch
// @Failure 404 {object} models.ErrorResponse
// @Router /api/supply_batches/{id} [get]
func GetSupplyBatchHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch id"})
			return
		}

		var b models.SupplyBatch
		err = db.QueryRow(`
			SELECT b.id, b.code, b.shipment_id, b.product_id, COALESCE(p.name, ''),
			       b.quantity_kg, b.status, b.is_rework, b.original_batch_id, b.created_at, b.updated_at
			FROM supply_batches b
			LEFT JOIN products p ON b.product_id = p.id
			WHERE b.id = $1`, id,
		).Scan(&b.ID, &b.Code, &b.ShipmentID, &b.ProductID, &b.ProductName,
			&b.QuantityKg, &b.Status, &b.IsRework, &b.OriginalBatchID, &b.CreatedAt, &b.UpdatedAt)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Supply batch not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch supply batch", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, b)
	}
}
