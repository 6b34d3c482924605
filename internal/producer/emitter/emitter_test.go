package emitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookline-systems/hookline/internal/producer/logging"
	"github.com/hookline-systems/hookline/internal/producer/queue"
	"github.com/hookline-systems/hookline/pkg/event"
)

func testEnvelope() *event.Envelope {
	return &event.Envelope{
		EventType: event.TypeSessionStart,
		Timestamp: "2025-09-29T19:00:00Z",
		SessionID: "s1",
		RequestID: "req_emit_test",
		TraceID:   "trc_emit_test",
	}
}

func newTestEmitter(t *testing.T, url string) (*Emitter, *queue.Queue) {
	t.Helper()
	// Short single-step backoff keeps drain tests fast.
	q, err := queue.Open(queue.Config{Dir: t.TempDir(), Backoff: []time.Duration{200 * time.Millisecond}})
	require.NoError(t, err)
	log, err := logging.Open(logging.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(log.Close)

	return New(Config{
		URL:              url,
		Token:            "test-token",
		Timeout:          2 * time.Second,
		ImmediateRetries: 2,
		RetryDelay:       10 * time.Millisecond,
	}, q, log), q
}

func TestSendSuccess(t *testing.T) {
	var gotAuth, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get(event.HeaderRequestID)
		json.NewEncoder(w).Encode(event.IngestResponse{
			Success:         true,
			RequestID:       r.Header.Get(event.HeaderRequestID),
			LinkedEntityIDs: event.LinkedEntityIDs{ConversationID: "c1"},
		})
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())

	assert.True(t, res.Delivered)
	assert.False(t, res.Queued)
	require.NotNil(t, res.Response)
	assert.Equal(t, "c1", res.Response.LinkedEntityIDs.ConversationID)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "req_emit_test", gotReqID)

	stats, _ := q.Stats()
	assert.Equal(t, 0, stats.Pending)
}

func TestSendRetryableFailureQueues(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())

	assert.False(t, res.Delivered)
	assert.True(t, res.Queued, "retryable failure must end in the queue, not an error")
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two immediate retries")

	items, err := q.List(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "req_emit_test", items[0].RequestID)
	assert.Equal(t, 0, items[0].RetryCount)
	assert.Contains(t, items[0].LastError.Message, "503")
}

func TestSendImmediateRetryRecovers(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(event.IngestResponse{Success: true})
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())

	assert.True(t, res.Delivered)
	stats, _ := q.Stats()
	assert.Equal(t, 0, stats.Pending)
}

func TestSendNonRetryableNotQueued(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(event.ErrorResponse{Error: "validation failed"})
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())

	assert.False(t, res.Delivered)
	assert.False(t, res.Queued, "retrying a malformed request is pointless")
	assert.ErrorContains(t, res.Err, "validation failed")
	assert.Equal(t, int32(1), attempts.Load(), "no retries on permanent rejection")

	stats, _ := q.Stats()
	assert.Equal(t, 0, stats.Pending)
}

func TestSendConnectionRefusedQueues(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e, q := newTestEmitter(t, url)
	res := e.Send(context.Background(), testEnvelope())

	assert.True(t, res.Queued)
	items, err := q.List(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].RetryCount)
	assert.WithinDuration(t, time.Now(), items[0].NextRetryAt, 10*time.Second)
}

func TestDrainOnceDeliversQueuedItem(t *testing.T) {
	down := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(event.IngestResponse{Success: true})
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())
	require.True(t, res.Queued)

	// Nothing eligible yet: backoff has not elapsed.
	delivered, failed := e.DrainOnce(context.Background())
	assert.Zero(t, delivered+failed)

	// Collector recovers and the backoff window passes.
	down = false
	time.Sleep(250 * time.Millisecond)
	delivered, failed = e.DrainOnce(context.Background())
	assert.Equal(t, 1, delivered)
	assert.Zero(t, failed)

	stats, _ := q.Stats()
	assert.Equal(t, queue.Depth{}, stats, "delivered item removed from queue")
}

func TestDrainOnceResendsOriginalRequestID(t *testing.T) {
	down := true
	var retriedReqID, retriedTraceID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		retriedReqID = r.Header.Get(event.HeaderRequestID)
		retriedTraceID = r.Header.Get(event.HeaderTraceID)
		json.NewEncoder(w).Encode(event.IngestResponse{Success: true})
	}))
	defer srv.Close()

	e, _ := newTestEmitter(t, srv.URL)
	res := e.Send(context.Background(), testEnvelope())
	require.True(t, res.Queued)

	down = false
	time.Sleep(250 * time.Millisecond)
	delivered, failed := e.DrainOnce(context.Background())
	require.Equal(t, 1, delivered)
	require.Zero(t, failed)

	// The retried send must carry the identity the event was first sent
	// with, so the collector can recognize it as the same request.
	assert.Equal(t, "req_emit_test", retriedReqID)
	assert.Equal(t, "trc_emit_test", retriedTraceID)
}

func TestDrainOnceDeadLettersPermanentRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e, q := newTestEmitter(t, srv.URL)

	_, err := q.Enqueue(testEnvelope(), assert.AnError)
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)

	delivered, failed := e.DrainOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Equal(t, 1, failed)

	stats, _ := q.Stats()
	assert.Equal(t, 1, stats.Dead)
	assert.Equal(t, 0, stats.Pending)
}
