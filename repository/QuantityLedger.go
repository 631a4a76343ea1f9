package repository

import (
	"fmt"
	"math"

	"backend/models"
)

// Pure quantity-ledger arithmetic. Everything here is a function of its
// arguments only; the database traversals that feed these live in
// LedgerQueries.go.

const massEpsilon = 1e-9

// AvailableQuantity is the mass surviving after accumulated waste. Clamped
// at zero, never negative.
func AvailableQuantity(initialKg, totalWasteKg float64) float64 {
	return math.Max(0, initialKg-totalWasteKg)
}

// SumWaste totals a slice of waste records in kg.
func SumWaste(records []models.WasteRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.QuantityKg
	}
	return total
}

// PackBreakdown converts a kg quantity into whole packs of the given size
// plus a remainder. The remainder always satisfies 0 <= r < packSizeKg.
func PackBreakdown(quantityKg, packSizeKg float64) (packCount int, remainderKg float64, err error) {
	if packSizeKg <= 0 {
		return 0, 0, fmt.Errorf("pack size must be positive, got %.3f", packSizeKg)
	}
	if quantityKg < 0 {
		return 0, 0, fmt.Errorf("quantity must not be negative, got %.3f", quantityKg)
	}
	packCount = int(math.Floor(quantityKg / packSizeKg))
	remainderKg = math.Max(0, quantityKg-float64(packCount)*packSizeKg)
	return packCount, remainderKg, nil
}

// IsAllowedPackSize reports whether size is one of the discrete catalog options.
func IsAllowedPackSize(sizeKg float64) bool {
	for _, opt := range models.PackSizeOptionsKg {
		if math.Abs(opt-sizeKg) < massEpsilon {
			return true
		}
	}
	return false
}

// RemainingMass is the usable mass left on a sorting output: stored quantity
// minus metal rejections minus mass already drawn by pack entries.
func RemainingMass(outputKg, rejectedKg, packedKg float64) float64 {
	return math.Max(0, outputKg-rejectedKg-packedKg)
}

// LatestGate returns the gate state decided by the attempt with the highest
// attempt number. No attempts means the gate is still PENDING.
func LatestGate(attempts []models.MetalCheckAttempt) (gate string, latestNo int) {
	gate = models.GatePending
	for _, a := range attempts {
		if a.AttemptNo > latestNo {
			latestNo = a.AttemptNo
			gate = a.Status
		}
	}
	return gate, latestNo
}

// RejectedMass totals rejection weights across all attempts of one output.
// Rejections only ever exist on FAIL attempts, so no status filter is needed.
func RejectedMass(attempts []models.MetalCheckAttempt) float64 {
	var total float64
	for _, a := range attempts {
		for _, r := range a.Rejections {
			total += r.WeightKg
		}
	}
	return total
}

// TotalPacks is the pack count of one allocation request.
func TotalPacks(unitsCount, packsPerUnit int) int {
	return unitsCount * packsPerUnit
}

// RemainingPacks is how many packs of an entry are still unallocated.
func RemainingPacks(packCount, allocatedPacks int) int {
	if remaining := packCount - allocatedPacks; remaining > 0 {
		return remaining
	}
	return 0
}

// AvailableForReworks is the mass a sorting step can still send to rework:
// whatever survived into the step minus what sorting already turned into
// outputs. Clamped at zero.
func AvailableForReworks(initialKg, wasteBeforeSortKg, sortedOutputKg float64) float64 {
	return math.Max(0, initialKg-wasteBeforeSortKg-sortedOutputKg)
}
