package middleware

import (
	"context"
	"net/http"

	"github.com/hookline-systems/hookline/pkg/event"
	"github.com/hookline-systems/hookline/pkg/ident"
)

type contextKey string

const (
	requestIDKey = contextKey("request-id")
	traceIDKey   = contextKey("trace-id")
)

// RequestID propagates the producer-assigned X-Request-ID and
// X-Trace-ID headers into the request context, generating a request ID
// when the client sent none. The request ID is echoed on the response
// so callers can correlate their logs with audit rows.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(event.HeaderRequestID)
		if requestID == "" {
			requestID = ident.NewRequestID()
		}
		w.Header().Set(event.HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		if traceID := r.Header.Get(event.HeaderTraceID); traceID != "" {
			ctx = context.WithValue(ctx, traceIDKey, traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetTraceID extracts the trace ID from the context, or "".
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}
