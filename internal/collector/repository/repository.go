// Package repository persists audit records and domain rows.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hookline-systems/hookline/internal/collector/models"
)

// ErrAuditNotFound is returned when no audit row matches the request ID.
var ErrAuditNotFound = errors.New("audit record not found")

// AuditResult carries the terminal outcome of processing one event.
type AuditResult struct {
	Status           models.AuditStatus
	ProcessedAt      time.Time
	ProcessingTimeMs int64
	ConversationID   *string
	MessageID        *string
	ToolUseID        *string
	ErrorMessage     *string
	ErrorCode        *string
}

// AuditStore tracks the lifecycle of every received request.
type AuditStore interface {
	// InsertAudit attempts to insert a new audit row. When a row with
	// the same request ID already exists, it returns inserted=false
	// together with the existing row, and the given record is not
	// written. This is the idempotency gate: exactly one caller per
	// request ID observes inserted=true.
	InsertAudit(ctx context.Context, rec *models.AuditRecord) (inserted bool, existing *models.AuditRecord, err error)

	// MarkProcessing transitions PENDING -> PROCESSING. Returns false
	// when the row was not in PENDING.
	MarkProcessing(ctx context.Context, requestID string) (bool, error)

	// ReclaimFailed transitions FAILED or ERROR -> PROCESSING so a
	// retried delivery can re-run the domain write against the same
	// audit row. Returns false when the row is in any other status,
	// including when a concurrent retry already reclaimed it.
	ReclaimFailed(ctx context.Context, requestID string) (bool, error)

	// MarkResult records the terminal status and outcome fields.
	MarkResult(ctx context.Context, requestID string, res *AuditResult) error

	// GetAudit fetches one audit row by request ID.
	GetAudit(ctx context.Context, requestID string) (*models.AuditRecord, error)
}

// DomainStore persists conversations, messages and tool uses.
type DomainStore interface {
	// FindOrCreateConversation returns the conversation for the given
	// session ID, creating it when absent. Concurrent callers for the
	// same session ID all receive the same row.
	FindOrCreateConversation(ctx context.Context, sessionID string, startedAt time.Time) (*models.Conversation, error)

	// EndConversation stamps the end time and reason on the session's
	// conversation, creating it first when no start event was seen.
	EndConversation(ctx context.Context, sessionID string, endedAt time.Time, reason *string) (*models.Conversation, error)

	InsertMessage(ctx context.Context, msg *models.Message) error
	InsertToolUse(ctx context.Context, tu *models.ToolUse) error
}

// Repository is the full persistence surface used by the ingest service.
type Repository interface {
	AuditStore
	DomainStore

	Ping(ctx context.Context) error
	Close()
}
