package handlers

import (
	"backend/models"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Helper to fetch session details
func GetSessionDetails(db *sql.DB, sessionID string) (models.Session, string, error) {
	var session models.Session
	var userName string

	query := `
        SELECT s.user_id, CONCAT(u.first_name, ' ', u.last_name) AS user_name, s.host_name, s.ip_address
        FROM session s
        JOIN users u ON s.user_id = u.id
        WHERE s.session_id = $1`

	err := db.QueryRow(query, sessionID).Scan(
		&session.UserID,
		&userName,
		&session.HostName,
		&session.IPAddress,
	)
	if err != nil {
		return models.Session{}, "", err
	}
	session.SessionID = sessionID
	return session, userName, nil
}

// validateAndGetSession reads the Authorization header and resolves the session.
func validateAndGetSession(c *gin.Context, db *sql.DB) (models.Session, string, error) {
	sessionID := c.GetHeader("Authorization")
	if sessionID == "" {
		return models.Session{}, "", errMissingSessionHeader
	}
	return GetSessionDetails(db, sessionID)
}

// Helper to save activity logs
func SaveActivityLog(db *sql.DB, log models.ActivityLog) error {
	query := `
    INSERT INTO activity_logs (
        created_at, user_name, host_name, event_context, ip_address,
        description, event_name, lot_run_id
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := db.Exec(query,
		log.CreatedAt, log.UserName, log.HostName, log.EventContext, log.IPAddress,
		log.Description, log.EventName, log.LotRunID,
	)
	return err
}

// GetActivityLogsHandler godoc
// @Summary      Get activity logs
// @Description  Returns paginated activity logs, newest first. Requires Authorization header.
// @Tags         activity-logs
// @Produce      json
// @Param        page   query  int  false  "Page"
// @Param        limit  query  int  false  "Limit"
// @Success      200    {array}   models.ActivityLog
// @Failure      401    {object}  models.ErrorResponse
// @Failure      500    {object}  models.ErrorResponse
// @Router       /api/logs [get]
func GetActivityLogsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 500 {
			limit = 50
		}
		offset := (page - 1) * limit

		rows, err := db.Query(`
			SELECT id, created_at, user_name, host_name, event_context, ip_address,
			       description, event_name, lot_run_id
			FROM activity_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve activity logs: " + err.Error()})
			return
		}
		defer rows.Close()

		var logs []models.ActivityLog
		for rows.Next() {
			var entry models.ActivityLog
			err := rows.Scan(&entry.ID, &entry.CreatedAt, &entry.UserName, &entry.HostName,
				&entry.EventContext, &entry.IPAddress, &entry.Description, &entry.EventName, &entry.LotRunID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan activity log: " + err.Error()})
				return
			}
			logs = append(logs, entry)
		}
		if err = rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, logs)
	}
}
