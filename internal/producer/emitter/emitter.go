// Package emitter transmits lifecycle events to the collector. Its
// outward contract is deliberate: transient failures are absorbed into
// the retry queue and reported as success to the caller, because the
// host process that fired the lifecycle hook must never be failed by
// telemetry. Only permanently rejected events surface an error, and
// even those are returned, not raised.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hookline-systems/hookline/internal/producer/logging"
	"github.com/hookline-systems/hookline/internal/producer/queue"
	"github.com/hookline-systems/hookline/pkg/event"
)

// Config controls transmission behavior.
type Config struct {
	URL              string
	Token            string
	Timeout          time.Duration
	ImmediateRetries int
	RetryDelay       time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ImmediateRetries <= 0 {
		c.ImmediateRetries = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

// Result reports what happened to one envelope.
type Result struct {
	// Delivered means the collector accepted the event.
	Delivered bool
	// Queued means transmission failed transiently and the event is
	// held durably for retry. The caller treats this as success.
	Queued bool
	// Response is the parsed collector reply when Delivered.
	Response *event.IngestResponse
	// Err is set only for permanent rejections (4xx other than 429),
	// where retrying cannot help.
	Err error
}

// Emitter sends envelopes over HTTP with bounded timeouts, immediate
// bounded retries, and retry-queue fallback.
type Emitter struct {
	cfg    Config
	client *http.Client
	queue  *queue.Queue
	log    *logging.Logger
}

// New constructs an Emitter. The queue and logger are required.
func New(cfg Config, q *queue.Queue, log *logging.Logger) *Emitter {
	cfg.applyDefaults()
	return &Emitter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		queue:  q,
		log:    log,
	}
}

// Send transmits one envelope. On retryable failure it performs up to
// ImmediateRetries in-process retries with a short fixed delay, then
// enqueues and returns Queued. Non-retryable failures are logged and
// returned without queuing.
func (e *Emitter) Send(ctx context.Context, env *event.Envelope) Result {
	fields := logging.Fields{
		RequestID: env.RequestID,
		TraceID:   env.TraceID,
		EventType: string(env.EventType),
		SessionID: env.SessionID,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.ImmediateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.cfg.RetryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = e.cfg.ImmediateRetries // fall through to queue
				continue
			}
		}

		resp, retryable, err := e.post(ctx, env)
		if err == nil {
			e.log.Info("event delivered", fields)
			return Result{Delivered: true, Response: resp}
		}
		if !retryable {
			e.log.Error("event permanently rejected", logging.Fields{
				RequestID: env.RequestID,
				TraceID:   env.TraceID,
				EventType: string(env.EventType),
				SessionID: env.SessionID,
				Context:   map[string]any{"error": err.Error()},
			})
			return Result{Err: err}
		}
		lastErr = err
	}

	if _, qErr := e.queue.Enqueue(env, lastErr); qErr != nil {
		// Queueing itself failed; nothing left but the error log. The
		// caller still must not see a failure.
		e.log.Error("enqueue failed, event lost", logging.Fields{
			RequestID: env.RequestID,
			TraceID:   env.TraceID,
			EventType: string(env.EventType),
			Context:   map[string]any{"error": qErr.Error(), "sendError": lastErr.Error()},
		})
		return Result{Queued: false}
	}
	e.log.QueueEvent("event queued for retry", logging.Fields{
		RequestID: env.RequestID,
		TraceID:   env.TraceID,
		EventType: string(env.EventType),
		SessionID: env.SessionID,
		Context:   map[string]any{"error": lastErr.Error()},
	})
	return Result{Queued: true}
}

// DrainOnce claims every eligible queued item and attempts a single
// re-send of each. Transient failures reschedule per the backoff table;
// permanent rejections move the item to dead-letter.
func (e *Emitter) DrainOnce(ctx context.Context) (delivered, failed int) {
	claims, err := e.queue.DrainEligible()
	if err != nil {
		e.log.Error("drain failed", logging.Fields{Context: map[string]any{"error": err.Error()}})
		return 0, 0
	}

	for _, c := range claims {
		item := c.Item
		fields := logging.Fields{
			RequestID: item.RequestID,
			TraceID:   item.TraceID,
			EventType: string(item.Envelope.EventType),
			SessionID: item.Envelope.SessionID,
			Context:   map[string]any{"retryCount": item.RetryCount},
		}

		_, retryable, err := e.post(ctx, item.Envelope)
		switch {
		case err == nil:
			delivered++
			if rmErr := c.Succeeded(); rmErr != nil {
				e.log.Error("release delivered item", logging.Fields{
					RequestID: item.RequestID,
					Context:   map[string]any{"error": rmErr.Error()},
				})
			}
			e.log.QueueEvent("queued event delivered", fields)
		case retryable:
			failed++
			if fErr := c.Failed(err); fErr != nil {
				e.log.Error("reschedule item", logging.Fields{
					RequestID: item.RequestID,
					Context:   map[string]any{"error": fErr.Error()},
				})
			}
			e.log.QueueEvent("retry failed, rescheduled", fields)
		default:
			failed++
			if xErr := c.Exhaust("permanently rejected: " + err.Error()); xErr != nil {
				e.log.Error("dead-letter item", logging.Fields{
					RequestID: item.RequestID,
					Context:   map[string]any{"error": xErr.Error()},
				})
			}
			e.log.QueueEvent("retry permanently rejected, dead-lettered", fields)
		}
	}
	return delivered, failed
}

// post performs one HTTP POST. The bool reports whether the failure is
// retryable: transport-level errors (refused, timeout, DNS, reset) and
// HTTP 429/5xx are; other 4xx are not.
func (e *Emitter) post(ctx context.Context, env *event.Envelope) (*event.IngestResponse, bool, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, false, fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.Token)
	req.Header.Set(event.HeaderRequestID, env.RequestID)
	req.Header.Set(event.HeaderTraceID, env.TraceID)

	resp, err := e.client.Do(req)
	if err != nil {
		// All transport failures look alike to the producer: the
		// event did not reach the collector, so retrying may help.
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("collector status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp event.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return nil, false, fmt.Errorf("collector status %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, false, fmt.Errorf("collector status %d", resp.StatusCode)
	}

	var result event.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Accepted but unreadable reply: the event is durably stored
		// server-side, do not re-send it.
		return &event.IngestResponse{Success: true, RequestID: env.RequestID}, false, nil
	}
	return &result, false, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
