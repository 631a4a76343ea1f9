package handlers

import (
	"backend/repository"
	"backend/utils"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
)

// GenerateLotRunPdfHandler renders a one-page lot run summary: batch header,
// the ledger breakdown, and per-step timing. Printed and filed with the QA
// paperwork for the batch.
// @Summary Lot run summary PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path int true "Lot run ID"
// @Success 200 {file} pdf
// @Failure 404 {object} models.ErrorResponse
// @Router /api/lot_runs/{id}/summary_pdf [get]
func GenerateLotRunPdfHandler(db *sql.DB) gin.HandlerFunc {
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

		var batchCode, status, startedBy string
		var createdAt time.Time
		err = db.QueryRowContext(ctx, `
			SELECT COALESCE(b.code, ''), l.status, l.started_by, l.created_at
			FROM lot_runs l LEFT JOIN supply_batches b ON l.supply_batch_id = b.id
			WHERE l.id = $1`, id).Scan(&batchCode, &status, &startedBy, &createdAt)
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

		pdf := gofpdf.New("P", "mm", "A4", "")
		pdf.AddPage()

		pdf.SetFont("Arial", "B", 16)
		pdf.Cell(0, 10, fmt.Sprintf("Lot Run %d - Batch %s", id, batchCode))
		pdf.Ln(12)

		pdf.SetFont("Arial", "", 11)
		pdf.Cell(0, 7, fmt.Sprintf("Status: %s    Started by: %s    Started: %s", status, startedBy, createdAt.Format("2006-01-02 15:04")))
		pdf.Ln(10)

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Quantity Ledger")
		pdf.Ln(9)
		pdf.SetFont("Arial", "", 11)
		ledgerRows := []struct {
			label string
			value float64
		}{
			{"Initial quantity", ledger.InitialQuantityKg},
			{"Washing waste", ledger.Breakdown.WashingWasteKg},
			{"Sorting waste", ledger.Breakdown.SortingWasteKg},
			{"Metal rejected", ledger.Breakdown.MetalRejectedKg},
			{"Packaging waste", ledger.Breakdown.PackagingWasteKg},
			{"Total waste", ledger.TotalWasteKg},
			{"Available quantity", ledger.AvailableQuantityKg},
		}
		for _, r := range ledgerRows {
			pdf.Cell(80, 7, r.label)
			pdf.Cell(40, 7, fmt.Sprintf("%.2f kg", r.value))
			pdf.Ln(7)
		}
		pdf.Ln(4)

		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Process Steps")
		pdf.Ln(9)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(30, 7, "Step")
		pdf.Cell(35, 7, "Status")
		pdf.Cell(55, 7, "Started")
		pdf.Cell(55, 7, "Finished")
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 10)

		rows, err := db.QueryContext(ctx, `
			SELECT step_code, sequence_no, status, started_at, finished_at
			FROM step_runs WHERE lot_run_id = $1 ORDER BY sequence_no, id`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch step runs", "details": err.Error()})
			return
		}
		defer rows.Close()

		formatTime := func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.Format("2006-01-02 15:04")
		}
		for rows.Next() {
			var code, stepStatus string
			var sequenceNo int
			var startedAt, finishedAt *time.Time
			if err := rows.Scan(&code, &sequenceNo, &stepStatus, &startedAt, &finishedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan step run", "details": err.Error()})
				return
			}
			pdf.Cell(30, 7, repository.GenerateStepRunName(code, sequenceNo))
			pdf.Cell(35, 7, stepStatus)
			pdf.Cell(55, 7, formatTime(startedAt))
			pdf.Cell(55, 7, formatTime(finishedAt))
			pdf.Ln(7)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		filename := fmt.Sprintf("lot_run_%d_%s.pdf", id, time.Now().Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Content-Type", "application/pdf")
		if err := pdf.Output(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write PDF", "details": err.Error()})
		}
	}
}
