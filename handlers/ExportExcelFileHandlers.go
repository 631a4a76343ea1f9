package handlers

import (
	"backend/models"
	"backend/repository"
	"backend/utils"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportWasteReportHandler builds an Excel workbook for one lot run: a
// summary sheet with the ledger numbers and a detail sheet listing every
// waste record in process order.
// @Summary Export lot run waste report
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Lot run ID"
// @Success 200 {file} xlsx
// @Failure 404 {object} models.ErrorResponse
// @Router /api/lot_runs/{id}/waste_report [get]
func ExportWasteReportHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot run id"})
			return
		}

		ctx, cancel := utils.QueryContext(c.Request.Context(), utils.ReportQueryTimeout)
		defer cancel()

		var batchCode, status string
		err = db.QueryRowContext(ctx, `
			SELECT COALESCE(b.code, ''), l.status
			FROM lot_runs l LEFT JOIN supply_batches b ON l.supply_batch_id = b.id
			WHERE l.id = $1`, id).Scan(&batchCode, &status)
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Lot run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lot run", "details": err.Error()})
			return
		}

		ledger, err := repository.CalculateAvailableQuantity(ctx, db, id, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate ledger", "details": err.Error()})
			return
		}

		f := excelize.NewFile()
		defer f.Close()

		summary := "Summary"
		idx, err := f.NewSheet(summary)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sheet", "details": err.Error()})
			return
		}

		f.SetCellValue(summary, "A1", "Lot Run")
		f.SetCellValue(summary, "B1", id)
		f.SetCellValue(summary, "A2", "Batch")
		f.SetCellValue(summary, "B2", batchCode)
		f.SetCellValue(summary, "A3", "Status")
		f.SetCellValue(summary, "B3", status)
		f.SetCellValue(summary, "A5", "Initial quantity (kg)")
		f.SetCellValue(summary, "B5", ledger.InitialQuantityKg)
		f.SetCellValue(summary, "A6", "Washing waste (kg)")
		f.SetCellValue(summary, "B6", ledger.Breakdown.WashingWasteKg)
		f.SetCellValue(summary, "A7", "Sorting waste (kg)")
		f.SetCellValue(summary, "B7", ledger.Breakdown.SortingWasteKg)
		f.SetCellValue(summary, "A8", "Metal rejected (kg)")
		f.SetCellValue(summary, "B8", ledger.Breakdown.MetalRejectedKg)
		f.SetCellValue(summary, "A9", "Packaging waste (kg)")
		f.SetCellValue(summary, "B9", ledger.Breakdown.PackagingWasteKg)
		f.SetCellValue(summary, "A10", "Total waste (kg)")
		f.SetCellValue(summary, "B10", ledger.TotalWasteKg)
		f.SetCellValue(summary, "A11", "Available quantity (kg)")
		f.SetCellValue(summary, "B11", ledger.AvailableQuantityKg)
		if ledger.InitialQuantityKg > 0 {
			f.SetCellValue(summary, "A12", "Yield (%)")
			f.SetCellValue(summary, "B12", 100*ledger.AvailableQuantityKg/ledger.InitialQuantityKg)
		}

		detail := "Waste Records"
		if _, err := f.NewSheet(detail); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sheet", "details": err.Error()})
			return
		}
		headers := []string{"Stage", "Waste Type", "Quantity (kg)", "Recorded By", "Recorded At"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(detail, cell, h)
		}

		rows, err := db.QueryContext(ctx, `
			SELECT w.stage, w.waste_type, w.quantity_kg, w.recorded_by, w.created_at
			FROM waste_records w
			WHERE w.stage_run_id IN (
				SELECT r.id FROM washing_runs r JOIN step_runs s ON r.step_run_id = s.id WHERE s.lot_run_id = $1
			) AND w.stage = 'WASHING'
			UNION ALL
			SELECT w.stage, w.waste_type, w.quantity_kg, w.recorded_by, w.created_at
			FROM waste_records w
			WHERE w.stage_run_id IN (
				SELECT r.id FROM sorting_runs r JOIN step_runs s ON r.step_run_id = s.id WHERE s.lot_run_id = $1
			) AND w.stage = 'SORTING'
			UNION ALL
			SELECT w.stage, w.waste_type, w.quantity_kg, w.recorded_by, w.created_at
			FROM waste_records w
			WHERE w.stage_run_id IN (
				SELECT r.id FROM packaging_runs r JOIN step_runs s ON r.step_run_id = s.id WHERE s.lot_run_id = $1
			) AND w.stage = 'PACKAGING'
			ORDER BY created_at`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch waste records", "details": err.Error()})
			return
		}
		defer rows.Close()

		rowNo := 2
		for rows.Next() {
			var w models.WasteRecord
			if err := rows.Scan(&w.Stage, &w.WasteType, &w.QuantityKg, &w.RecordedBy, &w.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan waste record", "details": err.Error()})
				return
			}
			f.SetCellValue(detail, fmt.Sprintf("A%d", rowNo), w.Stage)
			f.SetCellValue(detail, fmt.Sprintf("B%d", rowNo), w.WasteType)
			f.SetCellValue(detail, fmt.Sprintf("C%d", rowNo), w.QuantityKg)
			f.SetCellValue(detail, fmt.Sprintf("D%d", rowNo), w.RecordedBy)
			f.SetCellValue(detail, fmt.Sprintf("E%d", rowNo), w.CreatedAt.Format(time.RFC3339))
			rowNo++
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		f.SetActiveSheet(idx)
		f.DeleteSheet("Sheet1")

		filename := fmt.Sprintf("waste_report_%s_%s.xlsx", batchCode, time.Now().Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write workbook", "details": err.Error()})
		}
	}
}
