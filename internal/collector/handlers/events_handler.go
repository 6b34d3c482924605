// Package handlers exposes the collector's HTTP surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hookline-systems/hookline/internal/collector/models"
	"github.com/hookline-systems/hookline/internal/collector/ratelimit"
	"github.com/hookline-systems/hookline/internal/collector/repository"
	"github.com/hookline-systems/hookline/internal/collector/service"
	"github.com/hookline-systems/hookline/internal/httputil"
	"github.com/hookline-systems/hookline/internal/logging"
	"github.com/hookline-systems/hookline/internal/middleware"
	"github.com/hookline-systems/hookline/pkg/event"
)

// IngestService is the service surface the handlers need.
type IngestService interface {
	Ingest(ctx context.Context, env *event.Envelope, meta *service.RequestMeta) (*event.IngestResponse, error)
	RecordMalformed(ctx context.Context, meta *service.RequestMeta, cause error)
	Audit(ctx context.Context, requestID string) (*models.AuditRecord, error)
	Healthy(ctx context.Context) error
}

// MaxBodyBytes caps the request body. The largest legal payload is a
// ToolUse with 1MB of combined tool data plus envelope overhead.
const MaxBodyBytes = 2 << 20

// auditedHeaders are the request headers copied onto the audit row.
var auditedHeaders = []string{"User-Agent", "Content-Type", "X-Trace-ID", "X-Forwarded-For"}

// Handler serves event ingestion and operational endpoints.
type Handler struct {
	svc     IngestService
	limiter ratelimit.RateLimiter
	log     *logging.Logger
}

// NewHandler wires the HTTP layer.
func NewHandler(svc IngestService, limiter ratelimit.RateLimiter, log *logging.Logger) *Handler {
	return &Handler{svc: svc, limiter: limiter, log: log}
}

// IngestEvent handles POST /api/v1/events.
//
// Every response carries the request ID, success or not, so producer
// logs line up with audit rows. Malformed and invalid payloads still
// get an audit row; only rate-limited and oversized requests do not.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	token := middleware.ExtractBearer(r.Header.Get("Authorization"))
	allowed, err := h.limiter.Allow(ctx, token)
	if err != nil {
		// A broken limiter must not drop events; log and admit.
		h.log.WarnContext(ctx, "rate limiter unavailable", logging.Error(err))
		allowed = true
	}
	if !allowed {
		httputil.WriteJSON(w, http.StatusTooManyRequests, event.ErrorResponse{
			Error:     "rate limit exceeded",
			RequestID: requestID,
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, event.ErrorResponse{
				Error:     "request body exceeds 2MB limit",
				RequestID: requestID,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, event.ErrorResponse{
			Error:     "failed to read request body",
			RequestID: requestID,
		})
		return
	}

	meta := &service.RequestMeta{
		RequestID:     requestID,
		Body:          body,
		Headers:       selectedHeaders(r),
		SourceAddress: r.RemoteAddr,
	}

	var env event.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.svc.RecordMalformed(ctx, meta, err)
		httputil.WriteJSON(w, http.StatusBadRequest, event.ErrorResponse{
			Error:     "request body is not valid JSON",
			RequestID: requestID,
		})
		return
	}
	env.RequestID = requestID
	env.TraceID = middleware.GetTraceID(ctx)

	resp, err := h.svc.Ingest(ctx, &env, meta)
	if err != nil {
		h.writeIngestError(w, requestID, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetAudit handles GET /api/v1/audit/{requestId}.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")
	if requestID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "request id is required")
		return
	}

	rec, err := h.svc.Audit(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, repository.ErrAuditNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "audit record not found")
			return
		}
		h.log.ErrorContext(r.Context(), "audit lookup failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, rec)
}

// Health handles GET /healthz: process is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz: dependencies answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Healthy(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) writeIngestError(w http.ResponseWriter, requestID string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		httputil.WriteJSON(w, http.StatusBadRequest, event.ErrorResponse{
			Error:     "payload validation failed",
			RequestID: requestID,
			Details:   verr.Fields,
		})
		return
	}

	var perr *service.ProcessingError
	if errors.As(err, &perr) {
		// 500 signals the producer to queue and retry; the audit row
		// already records the failure.
		httputil.WriteJSON(w, http.StatusInternalServerError, event.ErrorResponse{
			Error:     "event processing failed",
			RequestID: requestID,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusInternalServerError, event.ErrorResponse{
		Error:     "internal error",
		RequestID: requestID,
	})
}

func selectedHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(auditedHeaders))
	for _, name := range auditedHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	return headers
}
