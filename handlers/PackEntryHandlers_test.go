package handlers

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"backend/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePackEntryTransactionSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity_kg FROM sorting_outputs WHERE id = $1 FOR UPDATE`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, attempt_no FROM metal_check_attempts WHERE sorting_output_id = $1 ORDER BY attempt_no DESC LIMIT 1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_no"}).AddRow("PASS", 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity_kg FROM sorting_outputs WHERE id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(mr.weight_kg), 0) FROM metal_rejections mr JOIN metal_check_attempts a ON mr.attempt_id = a.id WHERE a.sorting_output_id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(5.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity_kg), 0) FROM pack_entries WHERE sorting_output_id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(60.0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO pack_entries`)).
		WithArgs(4, 3, "vacuum", 5.0, 62.0, 12, 2.0, "op").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(6, time.Now()))
	mock.ExpectCommit()

	req := &models.PackEntryRequest{
		SortingOutputID: 4,
		ProductID:       3,
		PackingType:     "vacuum",
		PackSizeKg:      5,
		QuantityKg:      62,
	}
	entry, err := createPackEntryTransaction(context.Background(), db, req, "op")
	require.NoError(t, err)

	// 62 kg in 5 kg packs: 12 full packs, 2 kg remainder.
	assert.Equal(t, 12, entry.PackCount)
	assert.InDelta(t, 2.0, entry.RemainderKg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePackEntryTransactionGateBlocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity_kg FROM sorting_outputs WHERE id = $1 FOR UPDATE`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, attempt_no FROM metal_check_attempts WHERE sorting_output_id = $1 ORDER BY attempt_no DESC LIMIT 1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_no"}).AddRow("FAIL", 3))
	mock.ExpectRollback()

	req := &models.PackEntryRequest{SortingOutputID: 4, ProductID: 3, PackSizeKg: 5, QuantityKg: 10}
	_, err = createPackEntryTransaction(context.Background(), db, req, "op")

	var gateErr *models.ErrGateNotPassed
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, models.GateFail, gateErr.Gate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePackEntryTransactionMassExceeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity_kg FROM sorting_outputs WHERE id = $1 FOR UPDATE`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, attempt_no FROM metal_check_attempts WHERE sorting_output_id = $1 ORDER BY attempt_no DESC LIMIT 1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_no"}).AddRow("PASS", 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quantity_kg FROM sorting_outputs WHERE id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(mr.weight_kg), 0) FROM metal_rejections mr JOIN metal_check_attempts a ON mr.attempt_id = a.id WHERE a.sorting_output_id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(5.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity_kg), 0) FROM pack_entries WHERE sorting_output_id = $1`)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(60.0))
	mock.ExpectRollback()

	// Remaining is 200 - 5 - 60 = 135; asking for more must fail.
	req := &models.PackEntryRequest{SortingOutputID: 4, ProductID: 3, PackSizeKg: 5, QuantityKg: 140}
	_, err = createPackEntryTransaction(context.Background(), db, req, "op")

	var massErr *models.ErrMassExceeded
	require.True(t, errors.As(err, &massErr))
	assert.InDelta(t, 135.0, massErr.RemainingKg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
