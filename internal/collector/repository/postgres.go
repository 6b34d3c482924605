package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookline-systems/hookline/internal/collector/models"
	"github.com/hookline-systems/hookline/internal/database"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a connection pool and verifies connectivity.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

const auditColumns = `
	id, request_id, event_type, session_id, received_at,
	request_body, selected_headers, source_address, status,
	processed_at, processing_time_ms,
	conversation_id, message_id, tool_use_id,
	error_message, error_code, retry_count, next_retry_after`

// InsertAudit inserts a new audit row, or fetches the existing one when
// the request ID was already recorded. ON CONFLICT DO NOTHING makes the
// race between concurrent deliveries of the same request ID safe: the
// loser inserts nothing and reads the winner's row.
func (r *PostgresRepository) InsertAudit(ctx context.Context, rec *models.AuditRecord) (bool, *models.AuditRecord, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO audit_events (
			request_id, event_type, session_id, received_at,
			request_body, selected_headers, source_address, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		rec.RequestID, rec.EventType, rec.SessionID, rec.ReceivedAt,
		rec.RequestBody, rec.SelectedHeaders, rec.SourceAddress, rec.Status,
	).Scan(&rec.ID)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to insert audit record: %w", err)
	}

	existing, err := r.GetAudit(ctx, rec.RequestID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to fetch existing audit record: %w", err)
	}
	return false, existing, nil
}

// MarkProcessing transitions PENDING -> PROCESSING.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, requestID string) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_events SET status = $1 WHERE request_id = $2 AND status = $3`,
		models.StatusProcessing, requestID, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark audit processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimFailed atomically moves a FAILED or ERROR row back to
// PROCESSING. Exactly one of any number of concurrent retries for the
// same request ID wins the update.
func (r *PostgresRepository) ReclaimFailed(ctx context.Context, requestID string) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_events SET status = $1 WHERE request_id = $2 AND status IN ($3, $4)`,
		models.StatusProcessing, requestID, models.StatusFailed, models.StatusError,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim audit record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkResult records the terminal status and outcome of one request.
func (r *PostgresRepository) MarkResult(ctx context.Context, requestID string, res *AuditResult) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		UPDATE audit_events
		SET status = $1,
			processed_at = $2,
			processing_time_ms = $3,
			conversation_id = $4,
			message_id = $5,
			tool_use_id = $6,
			error_message = $7,
			error_code = $8
		WHERE request_id = $9
	`

	tag, err := r.pool.Exec(ctx, query,
		res.Status, res.ProcessedAt, res.ProcessingTimeMs,
		res.ConversationID, res.MessageID, res.ToolUseID,
		res.ErrorMessage, res.ErrorCode, requestID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark audit result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAuditNotFound
	}
	return nil
}

// GetAudit fetches one audit row by request ID.
func (r *PostgresRepository) GetAudit(ctx context.Context, requestID string) (*models.AuditRecord, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE request_id = $1`

	rec := &models.AuditRecord{}
	err := r.pool.QueryRow(ctx, query, requestID).Scan(
		&rec.ID, &rec.RequestID, &rec.EventType, &rec.SessionID, &rec.ReceivedAt,
		&rec.RequestBody, &rec.SelectedHeaders, &rec.SourceAddress, &rec.Status,
		&rec.ProcessedAt, &rec.ProcessingTimeMs,
		&rec.ConversationID, &rec.MessageID, &rec.ToolUseID,
		&rec.ErrorMessage, &rec.ErrorCode, &rec.RetryCount, &rec.NextRetryAfter,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

// FindOrCreateConversation upserts the conversation for a session. The
// no-op DO UPDATE makes RETURNING yield a row on both paths.
func (r *PostgresRepository) FindOrCreateConversation(ctx context.Context, sessionID string, startedAt time.Time) (*models.Conversation, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO conversations (id, session_id, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING id, session_id, started_at, ended_at, end_reason
	`

	c := &models.Conversation{}
	err := r.pool.QueryRow(ctx, query, newConversationID(), sessionID, startedAt).Scan(
		&c.ID, &c.SessionID, &c.StartedAt, &c.EndedAt, &c.EndReason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return c, nil
}

// EndConversation stamps end time and reason, creating the conversation
// first when the start event never arrived.
func (r *PostgresRepository) EndConversation(ctx context.Context, sessionID string, endedAt time.Time, reason *string) (*models.Conversation, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO conversations (id, session_id, started_at, ended_at, end_reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE
			SET ended_at = EXCLUDED.ended_at,
				end_reason = EXCLUDED.end_reason
		RETURNING id, session_id, started_at, ended_at, end_reason
	`

	c := &models.Conversation{}
	err := r.pool.QueryRow(ctx, query, newConversationID(), sessionID, endedAt, endedAt, reason).Scan(
		&c.ID, &c.SessionID, &c.StartedAt, &c.EndedAt, &c.EndReason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to end conversation: %w", err)
	}
	return c, nil
}

// InsertMessage appends one prompt to a conversation.
func (r *PostgresRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// InsertToolUse appends one tool invocation to a conversation.
func (r *PostgresRepository) InsertToolUse(ctx context.Context, tu *models.ToolUse) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tool_uses (id, conversation_id, tool_name, input, output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tu.ID, tu.ConversationID, tu.ToolName, tu.Input, tu.Output, tu.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool use: %w", err)
	}
	return nil
}

// newConversationID mints a time-ordered ID so conversations sort by
// creation without a secondary index.
func newConversationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Ping verifies database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
