package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDashboardHandler aggregates the numbers the floor overview screen
// shows: batch counts per status, open lot runs, today's waste and the pack
// totals sitting in storage.
// @Summary Dashboard aggregates
// @Tags Dashboard
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} models.ErrorResponse
// @Router /api/dashboard [get]
func GetDashboardHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		batchCounts := gin.H{}
		rows, err := db.Query(`SELECT status, COUNT(*) FROM supply_batches GROUP BY status`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count batches", "details": err.Error()})
			return
		}
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				rows.Close()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan batch count", "details": err.Error()})
				return
			}
			batchCounts[status] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		var openLotRuns int
		if err := db.QueryRow(`SELECT COUNT(*) FROM lot_runs WHERE status = 'IN_PROGRESS'`).Scan(&openLotRuns); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count lot runs", "details": err.Error()})
			return
		}

		var wasteTodayKg float64
		if err := db.QueryRow(`
			SELECT COALESCE(SUM(quantity_kg), 0) FROM waste_records
			WHERE created_at >= date_trunc('day', NOW())`).Scan(&wasteTodayKg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum waste", "details": err.Error()})
			return
		}

		var storedPacks int
		var storedKg float64
		if err := db.QueryRow(`
			SELECT COALESCE(SUM(total_packs), 0), COALESCE(SUM(total_kg), 0)
			FROM storage_allocations`).Scan(&storedPacks, &storedKg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum storage", "details": err.Error()})
			return
		}

		var failedGates int
		if err := db.QueryRow(`
			SELECT COUNT(*) FROM metal_check_attempts a
			WHERE a.status = 'FAIL' AND a.attempt_no = (
				SELECT MAX(attempt_no) FROM metal_check_attempts
				WHERE sorting_output_id = a.sorting_output_id
			)`).Scan(&failedGates); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count failed gates", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"batches":        batchCounts,
			"open_lot_runs":  openLotRuns,
			"waste_today_kg": wasteTodayKg,
			"stored_packs":   storedPacks,
			"stored_kg":      storedKg,
			"failed_gates":   failedGates,
		})
	}
}
