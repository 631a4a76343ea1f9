package handlers

import (
	"backend/models"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateShipmentHandler records one supplier delivery.
// @Summary Create shipment
// @Tags Shipments
// @Accept json
// @Produce json
// @Param request body models.Shipment true "Shipment"
// @Success 201 {object} models.Shipment
// @Failure 400 {object} models.ErrorResponse
// @Router /api/shipments [post]
func CreateShipmentHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.Shipment
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.SupplierID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "supplier_id is required"})
			return
		}
		if req.TotalMassKg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "total_mass_kg must be positive"})
			return
		}
		if req.ReceivedAt.IsZero() {
			req.ReceivedAt = time.Now()
		}

		err = db.QueryRow(`
			INSERT INTO shipments (supplier_id, delivery_note, received_at, total_mass_kg, remarks, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, created_at`,
			req.SupplierID, req.DeliveryNote, req.ReceivedAt, req.TotalMassKg, req.Remarks,
		).Scan(&req.ID, &req.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create shipment", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "shipment",
			IPAddress:    session.IPAddress,
			Description:  "Created shipment " + req.DeliveryNote,
			EventName:    "Create",
		})

		c.JSON(http.StatusCreated, req)
	}
}

// GetShipmentsHandler lists shipments with supplier names, newest first.
// @Summary List shipments
// @Tags Shipments
// @Produce json
// @Param supplier_id query int false "Filter by supplier"
// @Success 200 {array} models.Shipment
// @Failure 401 {object} models.ErrorResponse
// @Router /api/shipments [get]
func GetShipmentsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		query := `
			SELECT sh.id, sh.supplier_id, COALESCE(s.name, ''), sh.delivery_note,
			       sh.received_at, sh.total_mass_kg, COALESCE(sh.remarks, ''), sh.created_at
			FROM shipments sh
			LEFT JOIN suppliers s ON sh.supplier_id = s.id`
		args := []interface{}{}
		if supplierID := c.Query("supplier_id"); supplierID != "" {
			id, err := strconv.Atoi(supplierID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid supplier_id"})
				return
			}
			query += " WHERE sh.supplier_id = $1"
			args = append(args, id)
		}
		query += " ORDER BY sh.received_at DESC"

		rows, err := db.Query(query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch shipments", "details": err.Error()})
			return
		}
		defer rows.Close()

		var shipments []models.Shipment
		for rows.Next() {
			var sh models.Shipment
			if err := rows.Scan(&sh.ID, &sh.SupplierID, &sh.SupplierName, &sh.DeliveryNote,
				&sh.ReceivedAt, &sh.TotalMassKg, &sh.Remarks, &sh.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan shipment", "details": err.Error()})
				return
			}
			shipments = append(shipments, sh)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, shipments)
	}
}
