// Package validator checks lifecycle-event payload shape and size
// before any processing happens. Failures name the offending fields so
// producers can fix their payloads instead of guessing.
package validator

import (
	"fmt"
	"time"

	"github.com/hookline-systems/hookline/pkg/event"
)

// Per-field size ceilings, enforced before persistence.
const (
	MaxSessionIDLen     = 256
	MaxPromptBytes      = 100 << 10
	MaxToolNameLen      = 256
	MaxToolPayloadBytes = 1 << 20
	MaxReasonLen        = 1024
)

// Validate returns the list of field errors for an envelope, empty
// when the payload is acceptable.
func Validate(env *event.Envelope) []event.FieldError {
	var errs []event.FieldError

	if env.EventType == "" {
		errs = append(errs, event.FieldError{Field: "eventType", Message: "required"})
	} else if !env.EventType.Valid() {
		errs = append(errs, event.FieldError{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", env.EventType)})
	}

	if env.Timestamp == "" {
		errs = append(errs, event.FieldError{Field: "timestamp", Message: "required"})
	} else if _, err := env.OccurredAt(); err != nil {
		errs = append(errs, event.FieldError{Field: "timestamp", Message: "must be RFC3339"})
	}

	if env.SessionID == "" {
		errs = append(errs, event.FieldError{Field: "sessionId", Message: "required"})
	} else if len(env.SessionID) > MaxSessionIDLen {
		errs = append(errs, event.FieldError{Field: "sessionId", Message: sizeMsg(MaxSessionIDLen)})
	}

	switch env.EventType {
	case event.TypeUserPrompt:
		if env.Prompt == "" {
			errs = append(errs, event.FieldError{Field: "prompt", Message: "required for UserPrompt"})
		} else if len(env.Prompt) > MaxPromptBytes {
			errs = append(errs, event.FieldError{Field: "prompt", Message: sizeMsg(MaxPromptBytes)})
		}
	case event.TypeToolUse:
		if env.ToolName == "" {
			errs = append(errs, event.FieldError{Field: "toolName", Message: "required for ToolUse"})
		} else if len(env.ToolName) > MaxToolNameLen {
			errs = append(errs, event.FieldError{Field: "toolName", Message: sizeMsg(MaxToolNameLen)})
		}
		if len(env.ToolInput)+len(env.ToolOutput) > MaxToolPayloadBytes {
			errs = append(errs, event.FieldError{Field: "toolInput", Message: sizeMsg(MaxToolPayloadBytes)})
		}
	case event.TypeSessionEnd:
		if len(env.Reason) > MaxReasonLen {
			errs = append(errs, event.FieldError{Field: "reason", Message: sizeMsg(MaxReasonLen)})
		}
	}

	return errs
}

// ParseTimestamp returns the event time, falling back to now when the
// timestamp failed validation (the audit row still needs a value).
func ParseTimestamp(env *event.Envelope) time.Time {
	if t, err := env.OccurredAt(); err == nil {
		return t
	}
	return time.Now().UTC()
}

func sizeMsg(limit int) string {
	return fmt.Sprintf("exceeds maximum size of %d bytes", limit)
}
