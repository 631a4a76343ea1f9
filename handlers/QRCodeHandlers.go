package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

// GetBatchQRCodeHandler renders the label QR for a supply batch. The payload
// is the batch code plus product and mass, enough for a scanner at the line
// terminal to pull up the batch without typing.
// @Summary Batch label QR code
// @Tags SupplyBatches
// @Produce png
// @Param id path int true "Batch ID"
// @Success 200 {file} png
// @Failure 404 {object} models.ErrorResponse
// @Router /api/supply_batches/{id}/qrcode [get]
func GetBatchQRCodeHandler(db *sql.DB) gin.HandlerFunc {
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

		var code, productName string
		var quantityKg float64
		err = db.QueryRow(`
			SELECT b.code, COALESCE(p.name, ''), b.quantity_kg
			FROM supply_batches b
			LEFT JOIN products p ON b.product_id = p.id
			WHERE b.id = $1`, id).Scan(&code, &productName, &quantityKg)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Supply batch not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch supply batch", "details": err.Error()})
			return
		}

		payload := fmt.Sprintf("%s|%s|%.2fkg", code, productName, quantityKg)
		png, err := qrcode.Encode(payload, qrcode.Medium, 512)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code", "details": err.Error()})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, code))
		c.Data(http.StatusOK, "image/png", png)
	}
}
