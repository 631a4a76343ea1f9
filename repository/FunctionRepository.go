package repository

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// GenerateBatchCode produces a supply batch code like "NB-24173".
// Rework batches get an "RW" infix so line staff can tell them apart on labels.
func GenerateBatchCode(isRework bool) string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	number := rng.Intn(90000) + 10000

	if isRework {
		return fmt.Sprintf("NB-RW-%d", number)
	}
	return fmt.Sprintf("NB-%d", number)
}

// GenerateStepRunName formats a step run label like "SORT/0002" for reports.
func GenerateStepRunName(stepCode string, sequenceNo int) string {
	formattedCode := strings.ToUpper(stepCode)
	formattedSequence := fmt.Sprintf("%04d", sequenceNo)

	return formattedCode + "/" + formattedSequence
}
