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

// Editing an allocation must leave the edited row out of the capacity sum,
// otherwise a resize could never fit even when the entry has room.
func TestSaveStorageAllocationEditExcludesOwnRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pack_count, pack_size_kg FROM pack_entries WHERE id = $1 FOR UPDATE`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"pack_count", "pack_size_kg"}).AddRow(12, 5.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM storage_allocations WHERE id = $1)`)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(total_packs), 0) FROM storage_allocations WHERE pack_entry_id = $1 AND id <> $2`)).
		WithArgs(3, 7).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE storage_allocations`)).
		WithArgs(3, models.StorageTypeBox, 4, 2, 8, 40.0, 7).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	req := &models.StorageAllocationRequest{
		PackEntryID:  3,
		StorageType:  models.StorageTypeBox,
		UnitsCount:   4,
		PacksPerUnit: 2,
	}
	allocation, err := saveStorageAllocation(context.Background(), db, req, 7)
	require.NoError(t, err)

	// 4 and 8 fit exactly into the entry's 12 packs because the edited row's
	// own 8 packs are not counted against it.
	assert.Equal(t, 8, allocation.TotalPacks)
	assert.InDelta(t, 40.0, allocation.TotalKg, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStorageAllocationCapacityExceeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pack_count, pack_size_kg FROM pack_entries WHERE id = $1 FOR UPDATE`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"pack_count", "pack_size_kg"}).AddRow(12, 5.0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(total_packs), 0) FROM storage_allocations WHERE pack_entry_id = $1 AND id <> $2`)).
		WithArgs(3, 0).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(10))
	mock.ExpectRollback()

	// 10 of 12 packs already allocated; asking for 3 more must fail with the
	// true remainder.
	req := &models.StorageAllocationRequest{
		PackEntryID:  3,
		StorageType:  models.StorageTypeBag,
		UnitsCount:   1,
		PacksPerUnit: 3,
	}
	_, err = saveStorageAllocation(context.Background(), db, req, 0)

	var capErr *models.ErrPackCapacityExceeded
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 2, capErr.RemainingPacks)
	assert.NoError(t, mock.ExpectationsWereMet())
}
