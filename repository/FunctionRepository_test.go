package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateBatchCode(t *testing.T) {
	assert.Regexp(t, `^NB-\d{5}$`, GenerateBatchCode(false))
	assert.Regexp(t, `^NB-RW-\d{5}$`, GenerateBatchCode(true))
}

func TestGenerateStepRunName(t *testing.T) {
	assert.Equal(t, "SORT/0002", GenerateStepRunName("sort", 2))
	assert.Equal(t, "WASH/0001", GenerateStepRunName("WASH", 1))
	assert.Equal(t, "PACK/0012", GenerateStepRunName("pack", 12))
}
