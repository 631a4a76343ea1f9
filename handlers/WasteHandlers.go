package handlers

import (
	"backend/models"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateWasteRecordHandler records one waste tuple against a stage run. The
// stage named in the body must have a run row with the given id; the record
// feeds straight into the quantity ledger from then on.
// @Summary Record waste
// @Tags Waste
// @Accept json
// @Produce json
// @Param request body models.WasteRecordRequest true "Waste record"
// @Success 201 {object} models.WasteRecord
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/waste_records [post]
func CreateWasteRecordHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.WasteRecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.QuantityKg <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_kg must be positive"})
			return
		}
		// Metal losses are rejections on a check attempt, not waste records;
		// the ledger counts metal mass from metal_rejections only.
		if req.Stage == models.StageMetal {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "metal losses are recorded as metal check rejections, not waste records"})
			return
		}

		table, ok := tableForStage(req.Stage)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage " + req.Stage})
			return
		}

		// The stage run must exist in the table matching the declared stage;
		// this is what keeps waste attributed to the right step.
		var stepRunID, lotRunID int
		err = db.QueryRow(
			fmt.Sprintf(`SELECT r.step_run_id, s.lot_run_id FROM %s r JOIN step_runs s ON r.step_run_id = s.id WHERE r.id = $1`, table),
			req.StageRunID).Scan(&stepRunID, &lotRunID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s run %d not found", req.Stage, req.StageRunID)})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stage run", "details": err.Error()})
			return
		}

		record := models.WasteRecord{
			Stage:      req.Stage,
			StageRunID: req.StageRunID,
			WasteType:  req.WasteType,
			QuantityKg: req.QuantityKg,
			RecordedBy: userName,
		}
		err = db.QueryRow(`
			INSERT INTO waste_records (stage, stage_run_id, waste_type, quantity_kg, recorded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, created_at`,
			record.Stage, record.StageRunID, record.WasteType, record.QuantityKg, record.RecordedBy,
		).Scan(&record.ID, &record.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create waste record", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "waste_record",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Recorded %.2f kg %s waste (%s)", record.QuantityKg, record.Stage, record.WasteType),
			EventName:    "Create",
			LotRunID:     lotRunID,
		})

		c.JSON(http.StatusCreated, record)
	}
}

// GetWasteRecordsHandler lists waste records of one stage run.
// @Summary List waste records
// @Tags Waste
// @Produce json
// @Param stage query string true "Stage"
// @Param stage_run_id query int true "Stage run ID"
// @Success 200 {array} models.WasteRecord
// @Failure 400 {object} models.ErrorResponse
// @Router /api/waste_records [get]
func GetWasteRecordsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		stage := c.Query("stage")
		stageRunID := c.Query("stage_run_id")
		if stage == "" || stageRunID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stage and stage_run_id are required"})
			return
		}
		if _, ok := tableForStage(stage); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage " + stage})
			return
		}

		rows, err := db.Query(`
			SELECT id, stage, stage_run_id, waste_type, quantity_kg, recorded_by, created_at
			FROM waste_records WHERE stage = $1 AND stage_run_id = $2 ORDER BY id`,
			stage, stageRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch waste records", "details": err.Error()})
			return
		}
		defer rows.Close()

		records := []models.WasteRecord{}
		for rows.Next() {
			var r models.WasteRecord
			if err := rows.Scan(&r.ID, &r.Stage, &r.StageRunID, &r.WasteType, &r.QuantityKg, &r.RecordedBy, &r.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan waste record", "details": err.Error()})
				return
			}
			records = append(records, r)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, records)
	}
}
