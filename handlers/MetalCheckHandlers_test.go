package handlers

import (
	"context"
	"regexp"
	"testing"
	"time"

	"backend/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The attempt-number read must stay a plain MAX: Postgres rejects FOR UPDATE
// on aggregates (SQLSTATE 0A000) and that error aborts the whole transaction.
// The concurrency lock belongs on the sorting output row instead.
func TestCreateMetalCheckTransactionLocksOutputAndNumbersAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM metal_runs WHERE id = $1)`)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM sorting_outputs WHERE id = $1 FOR UPDATE`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(attempt_no), 0) FROM metal_check_attempts
		WHERE sorting_output_id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO metal_check_attempts`)).
		WithArgs(2, 4, 3, models.GateFail, "op").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO metal_rejections`)).
		WithArgs(9, "wire", 0.4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(15))
	mock.ExpectCommit()

	req := &models.MetalCheckRequest{
		MetalRunID:      2,
		SortingOutputID: 4,
		Status:          models.GateFail,
		Rejections:      []models.MetalRejectionRequest{{ObjectType: "wire", WeightKg: 0.4}},
	}
	attempt, err := createMetalCheckTransaction(context.Background(), db, req, "op")
	require.NoError(t, err)

	assert.Equal(t, 3, attempt.AttemptNo)
	require.Len(t, attempt.Rejections, 1)
	assert.Equal(t, "wire", attempt.Rejections[0].ObjectType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMetalCheckTransactionOutputMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM metal_runs WHERE id = $1)`)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM sorting_outputs WHERE id = $1 FOR UPDATE`)).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	req := &models.MetalCheckRequest{MetalRunID: 2, SortingOutputID: 99, Status: models.GatePass}
	_, err = createMetalCheckTransaction(context.Background(), db, req, "op")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sorting output 99 not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
