package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Metal losses live in metal_rejections via check attempts; a waste record
// with stage METAL would vanish from the ledger and the waste report, so the
// handler must refuse it outright.
func TestCreateWasteRecordRejectsMetalStage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT s.user_id").
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_name", "host_name", "ip_address"}).
			AddRow(1, "Nino Beridze", "line-terminal-2", "10.0.0.12"))

	router := gin.New()
	router.POST("/api/waste_records", CreateWasteRecordHandler(db))

	body := `{"stage":"METAL","stage_run_id":4,"waste_type":"foreign object","quantity_kg":1.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/waste_records", strings.NewReader(body))
	req.Header.Set("Authorization", "session-1")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "metal check rejections")
	// No insert may have reached the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}
