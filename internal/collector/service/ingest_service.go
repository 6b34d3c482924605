// Package service implements event ingestion: audit bookkeeping,
// request-level deduplication, and the per-type domain writes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hookline-systems/hookline/internal/collector/dlq"
	"github.com/hookline-systems/hookline/internal/collector/metrics"
	"github.com/hookline-systems/hookline/internal/collector/models"
	"github.com/hookline-systems/hookline/internal/collector/repository"
	"github.com/hookline-systems/hookline/internal/collector/validator"
	"github.com/hookline-systems/hookline/internal/logging"
	"github.com/hookline-systems/hookline/pkg/event"
)

// ValidationError reports a payload rejected before processing. The
// audit row has already been written with status INVALID.
type ValidationError struct {
	Fields []event.FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "invalid payload: " + strings.Join(names, ", ")
}

// ProcessingError reports a domain write that ended FAILED or ERROR.
// The audit row carries the details; the producer should retry.
type ProcessingError struct {
	Status models.AuditStatus
	Cause  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing ended %s: %v", e.Status, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// RequestMeta carries the transport-level facts recorded on every
// audit row alongside the payload.
type RequestMeta struct {
	RequestID     string
	Body          json.RawMessage
	Headers       map[string]string
	SourceAddress string
}

// IngestService runs the persisted lifecycle for each received event.
type IngestService struct {
	repo repository.Repository
	dlq  dlq.Writer
	log  *logging.Logger
	now  func() time.Time
}

// NewIngestService wires the service. failedEvents may be nil when no
// DLQ backend is configured.
func NewIngestService(repo repository.Repository, failedEvents dlq.Writer, log *logging.Logger) *IngestService {
	return &IngestService{
		repo: repo,
		dlq:  failedEvents,
		log:  log,
		now:  time.Now,
	}
}

// Ingest processes one envelope end to end.
//
// The audit row is the contract: it is inserted before any domain
// write, updated to PROCESSING when work starts, and stamped with a
// terminal status when work ends. The unique request ID makes the
// insert an idempotency gate; the loser of a concurrent race observes
// the winner's row and returns its current status without reprocessing.
// Rows that ended FAILED or ERROR are the exception: a replay re-claims
// them and runs the domain write again, since the producer only retries
// when the first delivery did not succeed.
func (s *IngestService) Ingest(ctx context.Context, env *event.Envelope, meta *RequestMeta) (*event.IngestResponse, error) {
	start := s.now()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if fieldErrs := validator.Validate(env); len(fieldErrs) > 0 {
		s.recordInvalid(ctx, env, meta, fieldErrs)
		return nil, &ValidationError{Fields: fieldErrs}
	}

	rec := s.auditRow(env, meta, models.StatusPending)
	inserted, existing, err := s.repo.InsertAudit(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	if !inserted {
		// A replay of a FAILED or ERROR row means the producer retried
		// because the first delivery never completed; re-claim the row
		// and re-run the domain write so the event is not lost. Every
		// other status is a true duplicate and reports the stored
		// outcome unchanged.
		switch existing.Status {
		case models.StatusFailed, models.StatusError:
			claimed, err := s.repo.ReclaimFailed(ctx, meta.RequestID)
			if err != nil {
				return nil, fmt.Errorf("reclaim audit record: %w", err)
			}
			if !claimed {
				// A concurrent retry won the reclaim; report the row
				// as it stands now.
				if rec, err := s.repo.GetAudit(ctx, meta.RequestID); err == nil {
					existing = rec
				}
				return s.duplicate(ctx, env, existing), nil
			}
			s.log.InfoContext(ctx, "retrying failed request",
				logging.EventType(string(env.EventType)),
				logging.Status(string(existing.Status)),
			)
		default:
			return s.duplicate(ctx, env, existing), nil
		}
	} else {
		if _, err := s.repo.MarkProcessing(ctx, meta.RequestID); err != nil {
			metrics.AuditWriteErrors.Inc()
			s.log.ErrorContext(ctx, "mark processing failed", logging.Error(err))
		}
	}

	occurredAt := validator.ParseTimestamp(env)
	links, domainErr := s.writeDomain(ctx, env, occurredAt)

	elapsed := s.now().Sub(start)
	if domainErr != nil {
		status := classifyFailure(domainErr)
		s.finishAudit(ctx, meta.RequestID, &repository.AuditResult{
			Status:           status,
			ProcessedAt:      s.now().UTC(),
			ProcessingTimeMs: elapsed.Milliseconds(),
			ErrorMessage:     ptr(domainErr.Error()),
			ErrorCode:        ptr(errorCode(domainErr)),
		})
		metrics.EventsTotal.WithLabelValues(string(env.EventType), string(status)).Inc()
		metrics.DomainWriteErrors.Inc()
		s.log.ErrorContext(ctx, "domain write failed",
			logging.EventType(string(env.EventType)),
			logging.SessionID(env.SessionID),
			logging.Status(string(status)),
			logging.Error(domainErr),
		)
		s.writeDLQ(ctx, env, meta, domainErr)
		return nil, &ProcessingError{Status: status, Cause: domainErr}
	}

	s.finishAudit(ctx, meta.RequestID, &repository.AuditResult{
		Status:           models.StatusSuccess,
		ProcessedAt:      s.now().UTC(),
		ProcessingTimeMs: elapsed.Milliseconds(),
		ConversationID:   optional(links.ConversationID),
		MessageID:        optional(links.MessageID),
		ToolUseID:        optional(links.ToolUseID),
	})
	metrics.EventsTotal.WithLabelValues(string(env.EventType), string(models.StatusSuccess)).Inc()
	s.log.InfoContext(ctx, "event ingested",
		logging.EventType(string(env.EventType)),
		logging.SessionID(env.SessionID),
		logging.Duration(elapsed.Milliseconds()),
	)

	return &event.IngestResponse{
		Success:         true,
		RequestID:       meta.RequestID,
		Status:          string(models.StatusSuccess),
		LinkedEntityIDs: links,
	}, nil
}

// RecordMalformed writes an INVALID audit row for a request whose body
// could not even be parsed. The raw bytes are kept for forensics.
func (s *IngestService) RecordMalformed(ctx context.Context, meta *RequestMeta, cause error) {
	body := meta.Body
	if !json.Valid(body) {
		// The audit column is JSONB; wrap unparseable bytes as a string.
		body, _ = json.Marshal(string(meta.Body))
	}
	rec := &models.AuditRecord{
		RequestID:       meta.RequestID,
		EventType:       "unknown",
		ReceivedAt:      s.now().UTC(),
		RequestBody:     body,
		SelectedHeaders: meta.Headers,
		SourceAddress:   meta.SourceAddress,
		Status:          models.StatusInvalid,
		ErrorMessage:    ptr(cause.Error()),
		ErrorCode:       ptr("MALFORMED_BODY"),
	}
	if _, _, err := s.repo.InsertAudit(ctx, rec); err != nil {
		metrics.AuditWriteErrors.Inc()
		s.log.ErrorContext(ctx, "record malformed request failed", logging.Error(err))
	}
	metrics.EventsTotal.WithLabelValues("unknown", string(models.StatusInvalid)).Inc()
}

// Audit fetches the stored audit row for a request ID.
func (s *IngestService) Audit(ctx context.Context, requestID string) (*models.AuditRecord, error) {
	return s.repo.GetAudit(ctx, requestID)
}

// Healthy reports whether the backing store answers.
func (s *IngestService) Healthy(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *IngestService) writeDomain(ctx context.Context, env *event.Envelope, occurredAt time.Time) (event.LinkedEntityIDs, error) {
	var links event.LinkedEntityIDs

	switch env.EventType {
	case event.TypeSessionStart:
		conv, err := s.repo.FindOrCreateConversation(ctx, env.SessionID, occurredAt)
		if err != nil {
			return links, err
		}
		links.ConversationID = conv.ID

	case event.TypeUserPrompt:
		conv, err := s.repo.FindOrCreateConversation(ctx, env.SessionID, occurredAt)
		if err != nil {
			return links, err
		}
		msg := &models.Message{
			ID:             newEntityID(),
			ConversationID: conv.ID,
			Role:           "user",
			Content:        env.Prompt,
			CreatedAt:      occurredAt,
		}
		if err := s.repo.InsertMessage(ctx, msg); err != nil {
			return links, err
		}
		links.ConversationID = conv.ID
		links.MessageID = msg.ID

	case event.TypeToolUse:
		conv, err := s.repo.FindOrCreateConversation(ctx, env.SessionID, occurredAt)
		if err != nil {
			return links, err
		}
		tu := &models.ToolUse{
			ID:             newEntityID(),
			ConversationID: conv.ID,
			ToolName:       env.ToolName,
			Input:          env.ToolInput,
			Output:         env.ToolOutput,
			CreatedAt:      occurredAt,
		}
		if err := s.repo.InsertToolUse(ctx, tu); err != nil {
			return links, err
		}
		links.ConversationID = conv.ID
		links.ToolUseID = tu.ID

	case event.TypeSessionEnd:
		conv, err := s.repo.EndConversation(ctx, env.SessionID, occurredAt, optional(env.Reason))
		if err != nil {
			return links, err
		}
		links.ConversationID = conv.ID
	}

	return links, nil
}

// recordInvalid persists the audit trail for a rejected payload.
func (s *IngestService) recordInvalid(ctx context.Context, env *event.Envelope, meta *RequestMeta, fieldErrs []event.FieldError) {
	rec := s.auditRow(env, meta, models.StatusInvalid)
	verr := &ValidationError{Fields: fieldErrs}
	rec.ErrorMessage = ptr(verr.Error())
	rec.ErrorCode = ptr("VALIDATION_FAILED")
	if _, _, err := s.repo.InsertAudit(ctx, rec); err != nil {
		metrics.AuditWriteErrors.Inc()
		s.log.ErrorContext(ctx, "record invalid payload failed", logging.Error(err))
	}
	eventType := string(env.EventType)
	if eventType == "" {
		eventType = "unknown"
	}
	metrics.EventsTotal.WithLabelValues(eventType, string(models.StatusInvalid)).Inc()
}

func (s *IngestService) auditRow(env *event.Envelope, meta *RequestMeta, status models.AuditStatus) *models.AuditRecord {
	return &models.AuditRecord{
		RequestID:       meta.RequestID,
		EventType:       string(env.EventType),
		SessionID:       optional(env.SessionID),
		ReceivedAt:      s.now().UTC(),
		RequestBody:     meta.Body,
		SelectedHeaders: meta.Headers,
		SourceAddress:   meta.SourceAddress,
		Status:          status,
	}
}

// finishAudit stamps the terminal status. A failure here does not undo
// the domain write, so it is logged and counted, not propagated.
func (s *IngestService) finishAudit(ctx context.Context, requestID string, res *repository.AuditResult) {
	if err := s.repo.MarkResult(ctx, requestID, res); err != nil {
		metrics.AuditWriteErrors.Inc()
		s.log.ErrorContext(ctx, "mark audit result failed",
			logging.Status(string(res.Status)),
			logging.Error(err),
		)
	}
}

func (s *IngestService) writeDLQ(ctx context.Context, env *event.Envelope, meta *RequestMeta, cause error) {
	if s.dlq == nil {
		return
	}
	failed := &dlq.FailedEvent{
		Timestamp: s.now().UTC(),
		RequestID: meta.RequestID,
		TraceID:   env.TraceID,
		EventType: string(env.EventType),
		SessionID: env.SessionID,
		Body:      meta.Body,
		Error:     cause.Error(),
		Reason:    "domain_write_failed",
	}
	if err := s.dlq.Write(ctx, failed); err != nil {
		s.log.ErrorContext(ctx, "dlq write failed", logging.Error(err))
	}
}

func (s *IngestService) duplicate(ctx context.Context, env *event.Envelope, rec *models.AuditRecord) *event.IngestResponse {
	metrics.DuplicatesTotal.Inc()
	s.log.InfoContext(ctx, "duplicate request",
		logging.EventType(string(env.EventType)),
		logging.Status(string(rec.Status)),
	)
	return duplicateResponse(rec)
}

// duplicateResponse reports the stored outcome of the first delivery.
// The stored status is never rewritten for a replay.
func duplicateResponse(rec *models.AuditRecord) *event.IngestResponse {
	resp := &event.IngestResponse{
		Success:   true,
		RequestID: rec.RequestID,
		Status:    string(rec.Status),
		Duplicate: true,
	}
	if rec.ConversationID != nil {
		resp.LinkedEntityIDs.ConversationID = *rec.ConversationID
	}
	if rec.MessageID != nil {
		resp.LinkedEntityIDs.MessageID = *rec.MessageID
	}
	if rec.ToolUseID != nil {
		resp.LinkedEntityIDs.ToolUseID = *rec.ToolUseID
	}
	return resp
}

// classifyFailure maps integrity violations to FAILED (the write broke
// a business rule and will not succeed on retry of the same data) and
// everything else to ERROR.
func classifyFailure(err error) models.AuditStatus {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return models.StatusFailed
	}
	return models.StatusError
}

func errorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "PG_" + pgErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	return "INTERNAL"
}

func newEntityID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func ptr(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
