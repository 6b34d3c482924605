// Package database holds shared timeout conventions for store access.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds read queries, including the
	// idempotency fast-path lookup.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds single-row writes. Audit and domain
	// writes are separate short transactions, so each gets its own
	// deadline.
	DefaultWriteTimeout = 10 * time.Second
)

// QueryContext returns a context bounded by DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext returns a context bounded by DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
