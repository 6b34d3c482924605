package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hookline-systems/hookline/pkg/event"
	"github.com/hookline-systems/hookline/pkg/ident"
)

func TestRequestIDPropagatesHeaders(t *testing.T) {
	var gotRequestID, gotTraceID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = GetRequestID(r.Context())
		gotTraceID = GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.Header.Set(event.HeaderRequestID, "req_abc")
	req.Header.Set(event.HeaderTraceID, "trc_def")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if gotRequestID != "req_abc" {
		t.Errorf("request id = %q, want req_abc", gotRequestID)
	}
	if gotTraceID != "trc_def" {
		t.Errorf("trace id = %q, want trc_def", gotTraceID)
	}
	if rr.Header().Get(event.HeaderRequestID) != "req_abc" {
		t.Error("request id not echoed on response")
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var gotRequestID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if gotRequestID == "" {
		t.Fatal("no request id generated")
	}
	if !ident.IsRequestID(gotRequestID) {
		t.Errorf("generated id %q lacks the request-id form", gotRequestID)
	}
	if rr.Header().Get(event.HeaderRequestID) != gotRequestID {
		t.Error("generated request id not echoed on response")
	}
}

func TestBearerAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		token      string
		authHeader string
		wantCode   int
	}{
		{"valid token", "secret", "Bearer secret", http.StatusNoContent},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized},
		{"auth disabled", "", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuth(tt.token)(next)
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	if got := ExtractBearer("Bearer tok"); got != "tok" {
		t.Errorf("got %q, want tok", got)
	}
	if got := ExtractBearer("bearer tok"); got != "tok" {
		t.Errorf("lowercase scheme: got %q, want tok", got)
	}
	if got := ExtractBearer(""); got != "" {
		t.Errorf("empty header: got %q", got)
	}
}
