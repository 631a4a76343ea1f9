package repository

import (
	"testing"

	"backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableQuantityNeverNegative(t *testing.T) {
	assert.Equal(t, 930.0, AvailableQuantity(1000, 70))
	assert.Equal(t, 0.0, AvailableQuantity(100, 150))
	assert.Equal(t, 0.0, AvailableQuantity(0, 0))
}

func TestAvailableQuantityMonotoneInWaste(t *testing.T) {
	records := []models.WasteRecord{
		{QuantityKg: 50},
		{QuantityKg: 20},
	}
	prev := AvailableQuantity(1000, SumWaste(records))
	assert.Equal(t, 930.0, prev)

	// Adding waste records can only shrink the available quantity.
	for _, extra := range []float64{0.5, 10, 400, 900} {
		records = append(records, models.WasteRecord{QuantityKg: extra})
		next := AvailableQuantity(1000, SumWaste(records))
		assert.LessOrEqual(t, next, prev)
		prev = next
	}
	assert.Equal(t, 0.0, prev)
}

func TestAvailableQuantityIdempotent(t *testing.T) {
	records := []models.WasteRecord{{QuantityKg: 12.5}, {QuantityKg: 7.25}}
	first := AvailableQuantity(500, SumWaste(records))
	second := AvailableQuantity(500, SumWaste(records))
	assert.Equal(t, first, second)
}

func TestPackBreakdown(t *testing.T) {
	// Scenario: 13 kg into 5 kg packs -> 2 packs, 3 kg remainder.
	count, remainder, err := PackBreakdown(13, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 3.0, remainder, 1e-9)

	count, remainder, err = PackBreakdown(60, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.InDelta(t, 0.0, remainder, 1e-9)

	count, remainder, err = PackBreakdown(0.75, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 0.0, remainder, 1e-9)
}

func TestPackBreakdownRemainderBounds(t *testing.T) {
	sizes := []float64{0.1, 0.25, 0.5, 1, 2, 5, 25}
	quantities := []float64{0, 0.1, 1.3, 13, 99.9, 500}
	for _, size := range sizes {
		for _, q := range quantities {
			count, remainder, err := PackBreakdown(q, size)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, remainder, 0.0)
			assert.Less(t, remainder, size)
			assert.InDelta(t, q, float64(count)*size+remainder, 1e-6)
		}
	}
}

func TestPackBreakdownRejectsBadInput(t *testing.T) {
	_, _, err := PackBreakdown(10, 0)
	assert.Error(t, err)
	_, _, err = PackBreakdown(10, -1)
	assert.Error(t, err)
	_, _, err = PackBreakdown(-3, 5)
	assert.Error(t, err)
}

func TestIsAllowedPackSize(t *testing.T) {
	for _, opt := range models.PackSizeOptionsKg {
		assert.True(t, IsAllowedPackSize(opt))
	}
	assert.False(t, IsAllowedPackSize(0.3))
	assert.False(t, IsAllowedPackSize(0))
	assert.False(t, IsAllowedPackSize(3))
}

func TestRemainingMass(t *testing.T) {
	// Scenario: 200 kg output, 5 kg rejected, 60 kg already packed -> 135 kg.
	assert.Equal(t, 135.0, RemainingMass(200, 5, 60))
	assert.Equal(t, 0.0, RemainingMass(10, 8, 5))
}

func TestLatestGate(t *testing.T) {
	gate, no := LatestGate(nil)
	assert.Equal(t, models.GatePending, gate)
	assert.Equal(t, 0, no)

	attempts := []models.MetalCheckAttempt{
		{AttemptNo: 1, Status: models.GateFail},
		{AttemptNo: 2, Status: models.GatePass},
	}
	gate, no = LatestGate(attempts)
	assert.Equal(t, models.GatePass, gate)
	assert.Equal(t, 2, no)

	// Order in the slice must not matter, only attempt_no.
	attempts = []models.MetalCheckAttempt{
		{AttemptNo: 3, Status: models.GateFail},
		{AttemptNo: 1, Status: models.GatePass},
		{AttemptNo: 2, Status: models.GatePass},
	}
	gate, no = LatestGate(attempts)
	assert.Equal(t, models.GateFail, gate)
	assert.Equal(t, 3, no)
}

func TestRejectedMass(t *testing.T) {
	attempts := []models.MetalCheckAttempt{
		{AttemptNo: 1, Status: models.GateFail, Rejections: []models.MetalRejection{
			{ObjectType: "wire fragment", WeightKg: 0.4},
			{ObjectType: "bolt", WeightKg: 4.6},
		}},
		{AttemptNo: 2, Status: models.GatePass},
	}
	assert.InDelta(t, 5.0, RejectedMass(attempts), 1e-9)
	assert.Equal(t, 0.0, RejectedMass(nil))
}

func TestAllocationCapacity(t *testing.T) {
	// Scenario: pack_count=100, 30 packs allocated, request 8x10=80 -> over.
	total := TotalPacks(8, 10)
	assert.Equal(t, 80, total)
	remaining := RemainingPacks(100, 30)
	assert.Equal(t, 70, remaining)
	assert.Greater(t, total, remaining)

	// 7x10=70 fits exactly.
	assert.LessOrEqual(t, TotalPacks(7, 10), remaining)

	assert.Equal(t, 0, RemainingPacks(50, 80))
}

func TestReworkAvailability(t *testing.T) {
	// Scenario: initial 500, pre-sort waste 40, sorted outputs 100 -> 360
	// available; 200 already reworked -> 160 remaining.
	available := AvailableForReworks(500, 40, 100)
	assert.Equal(t, 360.0, available)

	remaining := available - 200
	assert.Equal(t, 160.0, remaining)
	assert.Greater(t, 200.0, remaining) // a 200 kg request must be rejected
	assert.LessOrEqual(t, 150.0, remaining)

	assert.Equal(t, 0.0, AvailableForReworks(100, 80, 30))
}
