package utils

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds ordinary CRUD queries.
const DefaultQueryTimeout = 30 * time.Second

// LedgerQueryTimeout bounds the multi-query ledger traversals, which issue
// one waste query per visited step.
const LedgerQueryTimeout = 20 * time.Second

// ReportQueryTimeout bounds report exports (Excel/PDF) that aggregate over a
// whole lot run.
const ReportQueryTimeout = 60 * time.Second

// QueryContext returns a context with the given timeout for database work.
// A nil parent falls back to context.Background().
func QueryContext(parentCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return context.WithTimeout(parentCtx, timeout)
}
