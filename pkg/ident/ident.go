// Package ident generates the correlation identifiers used across the
// producer, the collector, and the audit store. All identifiers are
// URL-safe and lexicographically time-ordered (UUIDv7), so audit rows
// indexed by request ID sort in arrival order without a second column.
package ident

import "github.com/google/uuid"

// Identifier prefixes. The prefix makes it obvious in logs which class
// of identifier a value belongs to.
const (
	requestPrefix = "req_"
	tracePrefix   = "trc_"
	spanPrefix    = "spn_"
)

// NewRequestID returns the identifier for one logical event delivery.
// The same request ID is reused across every retry of that event, which
// is what makes server-side deduplication possible.
func NewRequestID() string {
	return requestPrefix + uuid.Must(uuid.NewV7()).String()
}

// NewTraceID returns the identifier shared by all events emitted from
// one producer session.
func NewTraceID() string {
	return tracePrefix + uuid.Must(uuid.NewV7()).String()
}

// NewSpanID returns an identifier for a single internal operation, used
// for fine-grained log correlation inside one component.
func NewSpanID() string {
	return spanPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsRequestID reports whether s carries the request-ID prefix.
func IsRequestID(s string) bool {
	return len(s) > len(requestPrefix) && s[:len(requestPrefix)] == requestPrefix
}
