// Package event defines the lifecycle-event wire format shared by the
// hookline producer and the collector service.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the lifecycle point that produced an event.
type Type string

const (
	TypeSessionStart Type = "SessionStart"
	TypeUserPrompt   Type = "UserPrompt"
	TypeToolUse      Type = "ToolUse"
	TypeSessionEnd   Type = "SessionEnd"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeSessionStart, TypeUserPrompt, TypeToolUse, TypeSessionEnd:
		return true
	}
	return false
}

// HTTP headers carrying correlation identifiers.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Envelope is one in-flight lifecycle event as POSTed to the collector.
// It is immutable once built: the producer assigns the identifiers at
// construction time and the same envelope is replayed verbatim on retry.
type Envelope struct {
	EventType Type   `json:"eventType"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId,omitempty"`

	// Per-type payload fields.
	Prompt     string          `json:"prompt,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolOutput json.RawMessage `json:"toolOutput,omitempty"`
	Reason     string          `json:"reason,omitempty"`

	// Correlation identifiers travel as headers, not body fields.
	RequestID string `json:"-"`
	TraceID   string `json:"-"`
}

// OccurredAt parses the envelope timestamp. RFC3339 only.
func (e *Envelope) OccurredAt() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Timestamp)
}

// LinkedEntityIDs identifies the domain rows an event resolved to.
type LinkedEntityIDs struct {
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	ToolUseID      string `json:"toolUseId,omitempty"`
}

// IngestResponse is the collector's success (or cached-duplicate) reply.
type IngestResponse struct {
	Success         bool            `json:"success"`
	RequestID       string          `json:"requestId"`
	Status          string          `json:"status,omitempty"`
	Duplicate       bool            `json:"duplicate,omitempty"`
	LinkedEntityIDs LinkedEntityIDs `json:"linkedEntityIds"`
}

// FieldError names one invalid payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the collector's failure reply. RequestID is always
// set so client logs can be correlated with server-side audit rows.
type ErrorResponse struct {
	Success   bool         `json:"success"`
	Error     string       `json:"error"`
	RequestID string       `json:"requestId,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
}
