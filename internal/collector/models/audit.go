// Package models defines the collector's stored types: the audit
// record tracking every received request, and the domain rows lifecycle
// events resolve into.
package models

import (
	"encoding/json"
	"time"
)

// AuditStatus is the persisted state of one received event.
type AuditStatus string

const (
	// StatusPending: audit row created, processing not yet started.
	StatusPending AuditStatus = "PENDING"
	// StatusProcessing: domain write in progress.
	StatusProcessing AuditStatus = "PROCESSING"
	// StatusSuccess: domain write completed, linked ids recorded.
	StatusSuccess AuditStatus = "SUCCESS"
	// StatusFailed: a known business-rule failure.
	StatusFailed AuditStatus = "FAILED"
	// StatusError: an unexpected processing failure.
	StatusError AuditStatus = "ERROR"
	// StatusInvalid: payload rejected before processing; the row
	// exists purely for the audit trail.
	StatusInvalid AuditStatus = "INVALID"
)

// Terminal reports whether no further transitions are expected.
func (s AuditStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusError, StatusInvalid:
		return true
	}
	return false
}

// AuditRecord is one row per received request, keyed by the unique
// request ID. Rows are never deleted; they carry the full lifecycle of
// the event independent of whether domain processing succeeded.
type AuditRecord struct {
	ID               int64             `json:"id"`
	RequestID        string            `json:"requestId"`
	EventType        string            `json:"eventType"`
	SessionID        *string           `json:"sessionId,omitempty"`
	ReceivedAt       time.Time         `json:"receivedAt"`
	RequestBody      json.RawMessage   `json:"requestBody,omitempty"`
	SelectedHeaders  map[string]string `json:"selectedHeaders,omitempty"`
	SourceAddress    string            `json:"sourceAddress"`
	Status           AuditStatus       `json:"status"`
	ProcessedAt      *time.Time        `json:"processedAt,omitempty"`
	ProcessingTimeMs *int64            `json:"processingTimeMs,omitempty"`
	ConversationID   *string           `json:"conversationId,omitempty"`
	MessageID        *string           `json:"messageId,omitempty"`
	ToolUseID        *string           `json:"toolUseId,omitempty"`
	ErrorMessage     *string           `json:"errorMessage,omitempty"`
	ErrorCode        *string           `json:"errorCode,omitempty"`
	RetryCount       int               `json:"retryCount"`
	NextRetryAfter   *time.Time        `json:"nextRetryAfter,omitempty"`
}

// Conversation is one agent session, unique per session ID.
type Conversation struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	EndReason *string    `json:"endReason,omitempty"`
}

// Message is one prompt appended to a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ToolUse is one tool invocation appended to a conversation.
type ToolUse struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	ToolName       string          `json:"toolName"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
