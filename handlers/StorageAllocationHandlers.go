package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func validStorageType(t string) bool {
	return t == models.StorageTypeBox || t == models.StorageTypeBag || t == models.StorageTypeShopPacking
}

// CreateStorageAllocationHandler assigns packs of one entry to a storage unit
// type. The capacity check counts every other allocation of the entry inside
// the same transaction, so the sum can never exceed the entry's pack count.
// @Summary Create storage allocation
// @Tags Storage
// @Accept json
// @Produce json
// @Param request body models.StorageAllocationRequest true "Allocation"
// @Success 201 {object} models.StorageAllocation
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/storage_allocations [post]
func CreateStorageAllocationHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.StorageAllocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.DefaultQueryTimeout)
		defer cancel()

		allocation, err := saveStorageAllocation(ctx, db, &req, 0)
		if err != nil {
			respondAllocationError(c, err)
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "storage_allocation",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Allocated %d packs to %s", allocation.TotalPacks, allocation.StorageType),
			EventName:    "Create",
		})

		c.JSON(http.StatusCreated, allocation)
	}
}

// UpdateStorageAllocationHandler edits an allocation. The edited row is left
// out of the capacity sum so resizing it downward or sideways always works.
// @Summary Update storage allocation
// @Tags Storage
// @Accept json
// @Produce json
// @Param id path int true "Allocation ID"
// @Param request body models.StorageAllocationRequest true "Allocation"
// @Success 200 {object} models.StorageAllocation
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/storage_allocations/{id} [put]
func UpdateStorageAllocationHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid allocation id"})
			return
		}

		var req models.StorageAllocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.DefaultQueryTimeout)
		defer cancel()

		allocation, err := saveStorageAllocation(ctx, db, &req, id)
		if err != nil {
			respondAllocationError(c, err)
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "storage_allocation",
			IPAddress:    session.IPAddress,
			Description:  fmt.Sprintf("Updated allocation %d: %d packs to %s", allocation.ID, allocation.TotalPacks, allocation.StorageType),
			EventName:    "Update",
		})

		c.JSON(http.StatusOK, allocation)
	}
}

func respondAllocationError(c *gin.Context, err error) {
	var capErr *models.ErrPackCapacityExceeded
	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           capErr.Error(),
			"remaining_packs": capErr.RemainingPacks,
		})
	case strings.Contains(err.Error(), "not found"):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case strings.Contains(err.Error(), "must be") || strings.Contains(err.Error(), "storage type"):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save allocation", "details": err.Error()})
	}
}

// saveStorageAllocation validates and writes one allocation, as create when
// allocationID is zero and as update otherwise.
func saveStorageAllocation(ctx context.Context, db *sql.DB, req *models.StorageAllocationRequest, allocationID int) (*models.StorageAllocation, error) {
	if !validStorageType(req.StorageType) {
		return nil, fmt.Errorf("storage type %q is not one of BOX, BAG, SHOP_PACKING", req.StorageType)
	}
	if req.UnitsCount <= 0 || req.PacksPerUnit <= 0 {
		return nil, fmt.Errorf("units_count and packs_per_unit must be positive")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var packCount int
	var packSizeKg float64
	err = tx.QueryRowContext(ctx, `SELECT pack_count, pack_size_kg FROM pack_entries WHERE id = $1 FOR UPDATE`, req.PackEntryID).
		Scan(&packCount, &packSizeKg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pack entry %d not found", req.PackEntryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pack entry: %w", err)
	}

	if allocationID != 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM storage_allocations WHERE id = $1)`, allocationID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check allocation: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("storage allocation %d not found", allocationID)
		}
	}

	allocated, err := repository.AllocatedPacks(ctx, tx, req.PackEntryID, allocationID)
	if err != nil {
		return nil, err
	}

	totalPacks := repository.TotalPacks(req.UnitsCount, req.PacksPerUnit)
	remaining := repository.RemainingPacks(packCount, allocated)
	if totalPacks > remaining {
		return nil, &models.ErrPackCapacityExceeded{RequestedPacks: totalPacks, RemainingPacks: remaining}
	}

	allocation := &models.StorageAllocation{
		ID:           allocationID,
		PackEntryID:  req.PackEntryID,
		StorageType:  req.StorageType,
		UnitsCount:   req.UnitsCount,
		PacksPerUnit: req.PacksPerUnit,
		TotalPacks:   totalPacks,
		TotalKg:      float64(totalPacks) * packSizeKg,
	}

	if allocationID == 0 {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO storage_allocations (pack_entry_id, storage_type, units_count, packs_per_unit, total_packs, total_kg, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			allocation.PackEntryID, allocation.StorageType, allocation.UnitsCount,
			allocation.PacksPerUnit, allocation.TotalPacks, allocation.TotalKg,
		).Scan(&allocation.ID, &allocation.CreatedAt, &allocation.UpdatedAt)
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE storage_allocations
			SET pack_entry_id = $1, storage_type = $2, units_count = $3, packs_per_unit = $4, total_packs = $5, total_kg = $6, updated_at = NOW()
			WHERE id = $7
			RETURNING created_at, updated_at`,
			allocation.PackEntryID, allocation.StorageType, allocation.UnitsCount,
			allocation.PacksPerUnit, allocation.TotalPacks, allocation.TotalKg, allocationID,
		).Scan(&allocation.CreatedAt, &allocation.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return allocation, nil
}

// GetStorageAllocationsHandler lists allocations of one pack entry.
// @Summary List storage allocations
// @Tags Storage
// @Produce json
// @Param pack_entry_id query int true "Pack entry ID"
// @Success 200 {array} models.StorageAllocation
// @Failure 400 {object} models.ErrorResponse
// @Router /api/storage_allocations [get]
func GetStorageAllocationsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		packEntryID, err := strconv.Atoi(c.Query("pack_entry_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pack_entry_id is required"})
			return
		}

		rows, err := db.Query(`
			SELECT id, pack_entry_id, storage_type, units_count, packs_per_unit, total_packs, total_kg, created_at, updated_at
			FROM storage_allocations WHERE pack_entry_id = $1 ORDER BY id`, packEntryID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch allocations", "details": err.Error()})
			return
		}
		defer rows.Close()

		allocations := []models.StorageAllocation{}
		for rows.Next() {
			var a models.StorageAllocation
			if err := rows.Scan(&a.ID, &a.PackEntryID, &a.StorageType, &a.UnitsCount, &a.PacksPerUnit,
				&a.TotalPacks, &a.TotalKg, &a.CreatedAt, &a.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan allocation", "details": err.Error()})
				return
			}
			allocations = append(allocations, a)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, allocations)
	}
}
