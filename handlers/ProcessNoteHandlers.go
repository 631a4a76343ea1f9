package handlers

import (
	"backend/models"
	"backend/services"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SaveProcessNoteHandler accepts a note edit and hands it to the debounced
// autosave service. The write is acknowledged immediately; the database sees
// only the newest snapshot per (lot run, step) once the debounce fires.
// @Summary Autosave process note
// @Tags ProcessNotes
// @Accept json
// @Produce json
// @Param request body models.ProcessNoteRequest true "Note snapshot"
// @Success 202 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/process_notes [put]
func SaveProcessNoteHandler(db *sql.DB, saver *services.NoteSaver) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.ProcessNoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		saver.Queue(req, userName)
		c.JSON(http.StatusAccepted, gin.H{"message": "Note queued"})
	}
}

// GetProcessNotesHandler lists the saved notes of one lot run.
// @Summary List process notes
// @Tags ProcessNotes
// @Produce json
// @Param id path int true "Lot run ID"
// @Success 200 {array} models.ProcessNote
// @Failure 401 {object} models.ErrorResponse
// @Router /api/lot_runs/{id}/notes [get]
func GetProcessNotesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		lotRunID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot run id"})
			return
		}

		rows, err := db.Query(`
			SELECT id, lot_run_id, step_code, content, updated_by, updated_at
			FROM process_notes WHERE lot_run_id = $1 ORDER BY step_code`, lotRunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notes", "details": err.Error()})
			return
		}
		defer rows.Close()

		notes := []models.ProcessNote{}
		for rows.Next() {
			var n models.ProcessNote
			if err := rows.Scan(&n.ID, &n.LotRunID, &n.StepCode, &n.Content, &n.UpdatedBy, &n.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan note", "details": err.Error()})
				return
			}
			notes = append(notes, n)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, notes)
	}
}
