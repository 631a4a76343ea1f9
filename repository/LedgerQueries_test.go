package repository

import (
	"context"
	"regexp"
	"testing"

	"backend/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateAvailableQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(lotRunHeaderQuery)).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"initial_quantity_kg"}).AddRow(1000.0))

	mock.ExpectQuery(regexp.QuoteMeta(stepRunsQuery)).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"id", "step_code", "sequence_no", "status"}).
			AddRow(31, models.StepCodeWash, 1, models.StepStatusCompleted).
			AddRow(32, models.StepCodeSort, 2, models.StepStatusCompleted).
			AddRow(33, models.StepCodeMetal, 3, models.StepStatusCompleted).
			AddRow(34, models.StepCodePack, 4, models.StepStatusInProgress))

	mock.ExpectQuery(regexp.QuoteMeta(washingWasteQuery)).
		WithArgs(31).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(50.0))
	mock.ExpectQuery(regexp.QuoteMeta(sortingWasteQuery)).
		WithArgs(32).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(20.0))
	mock.ExpectQuery(regexp.QuoteMeta(metalRejectionsQuery)).
		WithArgs(33).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	mock.ExpectQuery(regexp.QuoteMeta(packagingWasteQuery)).
		WithArgs(34).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))

	result, err := CalculateAvailableQuantity(context.Background(), db, 12, 0)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, result.InitialQuantityKg)
	assert.Equal(t, 70.0, result.TotalWasteKg)
	assert.Equal(t, 930.0, result.AvailableQuantityKg)
	assert.Equal(t, 50.0, result.Breakdown.WashingWasteKg)
	assert.Equal(t, 20.0, result.Breakdown.SortingWasteKg)
	assert.Equal(t, 0.0, result.Breakdown.MetalRejectedKg)
	assert.Equal(t, 0.0, result.Breakdown.PackagingWasteKg)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculateAvailableQuantityCutoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(lotRunHeaderQuery)).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"initial_quantity_kg"}).AddRow(500.0))

	mock.ExpectQuery(regexp.QuoteMeta(stepRunsQuery)).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"id", "step_code", "sequence_no", "status"}).
			AddRow(31, models.StepCodeWash, 1, models.StepStatusCompleted).
			AddRow(32, models.StepCodeSort, 2, models.StepStatusInProgress).
			AddRow(33, models.StepCodeMetal, 3, models.StepStatusPending))

	// Cutoff at the sorting step: the metal step after it must not be visited.
	mock.ExpectQuery(regexp.QuoteMeta(washingWasteQuery)).
		WithArgs(31).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(40.0))
	mock.ExpectQuery(regexp.QuoteMeta(sortingWasteQuery)).
		WithArgs(32).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))

	result, err := CalculateAvailableQuantity(context.Background(), db, 12, 32)
	require.NoError(t, err)

	assert.Equal(t, 460.0, result.AvailableQuantityKg)
	assert.Equal(t, 40.0, result.TotalWasteKg)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculateAvailableQuantityNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(lotRunHeaderQuery)).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"initial_quantity_kg"}))

	_, err = CalculateAvailableQuantity(context.Background(), db, 99, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "99")
	assert.Contains(t, err.Error(), "not found")
}

func TestRemainingMassForOutput(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(outputQuantityQuery)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"quantity_kg"}).AddRow(200.0))
	mock.ExpectQuery(regexp.QuoteMeta(outputRejectedQuery)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(5.0))
	mock.ExpectQuery(regexp.QuoteMeta(outputPackedQuery)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(60.0))

	result, err := RemainingMassForOutput(context.Background(), db, 4)
	require.NoError(t, err)

	assert.Equal(t, 135.0, result.RemainingKg)
	assert.Equal(t, 200.0, result.QuantityKg)
	assert.Equal(t, 5.0, result.RejectedKg)
	assert.Equal(t, 60.0, result.PackedKg)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateForOutputPendingWhenNoAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(latestAttemptQuery)).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"status", "attempt_no"}))

	gate, attemptNo, err := GateForOutput(context.Background(), db, 4)
	require.NoError(t, err)
	assert.Equal(t, models.GatePending, gate)
	assert.Equal(t, 0, attemptNo)
}
