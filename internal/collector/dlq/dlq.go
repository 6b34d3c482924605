// Package dlq records events whose domain write terminally failed, so
// operators can replay them out-of-band after fixing the cause. The
// audit row is the source of truth; this stream exists for replay
// convenience and survives independently of the database.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FailedEvent captures one terminally failed ingestion.
type FailedEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId"`
	TraceID   string          `json:"traceId,omitempty"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId,omitempty"`
	Body      json.RawMessage `json:"body"`
	Error     string          `json:"error"`
	Reason    string          `json:"reason"`
}

// Writer records failed events. Implementations are best-effort: a
// write failure is logged, never propagated into the request path.
type Writer interface {
	Write(ctx context.Context, failed *FailedEvent) error
}

// FileQueue writes one JSON file per failed event. Single-instance
// deployments only.
type FileQueue struct {
	basePath string
	mu       sync.Mutex
}

// NewFileQueue creates the target directory if needed.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if basePath == "" {
		basePath = "/var/lib/hookline/dlq"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{basePath: basePath}, nil
}

// Write persists one failed event.
func (q *FileQueue) Write(ctx context.Context, failed *FailedEvent) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		slog.Error("marshal dlq entry", slog.String("error", err.Error()))
		return err
	}

	// The request ID keys the file to its audit row; the nanosecond
	// stamp keeps repeated failures of one request, and writes from a
	// restarted instance, from overwriting each other.
	filename := fmt.Sprintf("failed_%d_%s.json", time.Now().UnixNano(), failed.RequestID)
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0o644); err != nil {
		slog.Error("write dlq entry", slog.String("error", err.Error()))
		return err
	}

	slog.Info("dlq entry written",
		slog.String("request_id", failed.RequestID),
		slog.String("reason", failed.Reason),
	)
	return nil
}

// List returns up to limit failed events, directory order.
func (q *FileQueue) List(ctx context.Context, limit int) ([]FailedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var events []FailedEvent
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if limit > 0 && len(events) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, e.Name()))
		if err != nil {
			continue
		}
		var failed FailedEvent
		if err := json.Unmarshal(data, &failed); err != nil {
			continue
		}
		events = append(events, failed)
	}
	return events, nil
}
