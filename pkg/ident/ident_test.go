package ident

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewRequestID_Prefix(t *testing.T) {
	id := NewRequestID()
	if !strings.HasPrefix(id, "req_") {
		t.Errorf("Expected req_ prefix, got %q", id)
	}
	if !IsRequestID(id) {
		t.Errorf("IsRequestID(%q) = false, want true", id)
	}
	if IsRequestID(NewTraceID()) {
		t.Error("IsRequestID accepted a trace ID")
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := NewRequestID()
		if seen[id] {
			t.Fatalf("Duplicate request ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewRequestID_TimeOrdered(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, NewRequestID())
		// UUIDv7 carries millisecond precision; keep generations apart.
		time.Sleep(2 * time.Millisecond)
	}

	if !sort.StringsAreSorted(ids) {
		t.Errorf("Expected IDs generated over time to sort lexicographically: %v", ids)
	}
}

func TestTraceAndSpanPrefixes(t *testing.T) {
	if !strings.HasPrefix(NewTraceID(), "trc_") {
		t.Error("Trace ID missing trc_ prefix")
	}
	if !strings.HasPrefix(NewSpanID(), "spn_") {
		t.Error("Span ID missing spn_ prefix")
	}
}
