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

func expectReworkLedgerQueries(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT step_code, status, lot_run_id, sequence_no FROM step_runs WHERE id = $1 FOR UPDATE`)).
		WithArgs(22).
		WillReturnRows(sqlmock.NewRows([]string{"step_code", "status", "lot_run_id", "sequence_no"}).
			AddRow(models.StepCodeSort, models.StepStatusInProgress, 9, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT b.id, b.product_id, b.shipment_id`)).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "shipment_id"}).AddRow(5, 3, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM step_runs`)).
		WithArgs(9, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT initial_quantity_kg FROM lot_runs WHERE id = $1`)).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"initial_quantity_kg"}).AddRow(300.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, step_code, sequence_no, status FROM step_runs WHERE lot_run_id = $1 ORDER BY sequence_no, id`)).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "step_code", "sequence_no", "status"}).
			AddRow(21, models.StepCodeWash, 1, models.StepStatusCompleted).
			AddRow(22, models.StepCodeSort, 2, models.StepStatusInProgress))
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN washing_runs r ON w.stage_run_id = r.id`)).
		WithArgs(21).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(20.0))
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN sorting_runs r ON o.sorting_run_id = r.id`)).
		WithArgs(22).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(150.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(quantity_kg), 0) FROM reworked_lots WHERE step_run_id = $1`)).
		WithArgs(22).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(50.0))
}

// A rework draws from what survived into sorting (300 initial - 20 washing
// waste = 280) minus sorted outputs (150) and earlier reworks (50): 80 kg
// headroom. Within the bound all three rows land in one transaction.
func TestCreateReworkTransactionSpawnsAllRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReworkLedgerQueries(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO supply_batches`)).
		WithArgs(sqlmock.AnyArg(), 2, 3, 60.0, models.BatchStatusProcessing, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(31))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO lot_runs`)).
		WithArgs(31, 60.0, models.LotRunStatusInProgress, 9, "op").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO step_runs`)).
		WithArgs(41, models.StepStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO reworked_lots`)).
		WithArgs(22, 5, 31, 41, 60.0, "op").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, time.Now()))
	mock.ExpectCommit()

	req := &models.ReworkRequest{StepRunID: 22, QuantityKg: 60}
	rework, err := createReworkTransaction(context.Background(), db, req, "op")
	require.NoError(t, err)

	assert.Equal(t, 5, rework.OriginalBatchID)
	assert.Equal(t, 31, rework.NewBatchID)
	assert.Equal(t, 41, rework.NewLotRunID)
	assert.InDelta(t, 60.0, rework.QuantityKg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReworkTransactionExceedsRemaining(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReworkLedgerQueries(mock)
	mock.ExpectRollback()

	req := &models.ReworkRequest{StepRunID: 22, QuantityKg: 100}
	_, err = createReworkTransaction(context.Background(), db, req, "op")

	var exceeded *models.ErrReworkExceeded
	require.True(t, errors.As(err, &exceeded))
	assert.InDelta(t, 80.0, exceeded.RemainingKg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
