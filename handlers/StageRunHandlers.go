package handlers

import (
	"backend/models"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// stageForStepCode maps a step run's code to its stage and run table. Each
// stage keeps its own run table so stage-specific columns can grow without
// touching the others.
func stageForStepCode(stepCode string) (stage, table string, ok bool) {
	switch stepCode {
	case models.StepCodeWash:
		return models.StageWashing, "washing_runs", true
	case models.StepCodeSort:
		return models.StageSorting, "sorting_runs", true
	case models.StepCodeMetal:
		return models.StageMetal, "metal_runs", true
	case models.StepCodePack:
		return models.StagePackaging, "packaging_runs", true
	}
	return "", "", false
}

// tableForStage is the reverse lookup, used when a request names the stage.
func tableForStage(stage string) (string, bool) {
	switch stage {
	case models.StageWashing:
		return "washing_runs", true
	case models.StageSorting:
		return "sorting_runs", true
	case models.StageMetal:
		return "metal_runs", true
	case models.StagePackaging:
		return "packaging_runs", true
	}
	return "", false
}

// CreateStageRunHandler opens a stage run under an in-progress step run. The
// run lands in the stage table matching the step's code.
// @Summary Create stage run
// @Tags StageRuns
// @Accept json
// @Produce json
// @Param request body models.StageRunRequest true "Stage run"
// @Success 201 {object} models.StageRun
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/stage_runs [post]
func CreateStageRunHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.StageRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var stepCode, stepStatus string
		var lotRunID int
		err = db.QueryRow(`SELECT step_code, status, lot_run_id FROM step_runs WHERE id = $1`, req.StepRunID).
			Scan(&stepCode, &stepStatus, &lotRunID)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Step run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch step run", "details": err.Error()})
			return
		}
		if stepStatus != models.StepStatusInProgress {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("step run is %s, stage runs need IN_PROGRESS", stepStatus)})
			return
		}

		stage, table, ok := stageForStepCode(stepCode)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "step " + stepCode + " has no stage table"})
			return
		}

		run := models.StageRun{
			StepRunID: req.StepRunID,
			Stage:     stage,
			Operator:  userName,
			Remarks:   req.Remarks,
		}
		err = db.QueryRow(
			fmt.Sprintf(`INSERT INTO %s (step_run_id, operator, remarks, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`, table),
			req.StepRunID, userName, req.Remarks,
		).Scan(&run.ID, &run.CreatedAt)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create stage run", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "stage_run",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Opened %s run %d", stage, run.ID),
			EventName:    "Create",
			LotRunID:     lotRunID,
		})

		c.JSON(http.StatusCreated, run)
	}
}

// GetStageRunsHandler lists the stage runs of one step run.
// @Summary List stage runs of a step run
// @Tags StageRuns
// @Produce json
// @Param id path int true "Step run ID"
// @Success 200 {array} models.StageRun
// @Failure 404 {object} models.ErrorResponse
// @Router /api/step_runs/{id}/stage_runs [get]
func GetStageRunsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		stepRunID := c.Param("id")
		var stepCode string
		err := db.QueryRow(`SELECT step_code FROM step_runs WHERE id = $1`, stepRunID).Scan(&stepCode)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Step run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch step run", "details": err.Error()})
			return
		}

		stage, table, ok := stageForStepCode(stepCode)
		if !ok {
			c.JSON(http.StatusOK, []models.StageRun{})
			return
		}

		rows, err := db.Query(
			fmt.Sprintf(`SELECT id, step_run_id, operator, COALESCE(remarks, ''), created_at FROM %s WHERE step_run_id = $1 ORDER BY id`, table),
			stepRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stage runs", "details": err.Error()})
			return
		}
		defer rows.Close()

		runs := []models.StageRun{}
		for rows.Next() {
			var r models.StageRun
			if err := rows.Scan(&r.ID, &r.StepRunID, &r.Operator, &r.Remarks, &r.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan stage run", "details": err.Error()})
				return
			}
			r.Stage = stage
			runs = append(runs, r)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, runs)
	}
}
