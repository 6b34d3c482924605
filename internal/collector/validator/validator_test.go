package validator

import (
	"strings"
	"testing"

	"github.com/hookline-systems/hookline/pkg/event"
)

func validStart() *event.Envelope {
	return &event.Envelope{
		EventType: event.TypeSessionStart,
		Timestamp: "2025-09-29T19:00:00Z",
		SessionID: "s1",
	}
}

func fieldNames(errs []event.FieldError) []string {
	var names []string
	for _, e := range errs {
		names = append(names, e.Field)
	}
	return names
}

func TestValidEnvelopes(t *testing.T) {
	cases := map[string]*event.Envelope{
		"SessionStart": validStart(),
		"UserPrompt": {
			EventType: event.TypeUserPrompt,
			Timestamp: "2025-09-29T19:00:01Z",
			SessionID: "s1",
			Prompt:    "fix the tests",
		},
		"ToolUse": {
			EventType: event.TypeToolUse,
			Timestamp: "2025-09-29T19:00:02Z",
			SessionID: "s1",
			ToolName:  "Read",
		},
		"SessionEnd": {
			EventType: event.TypeSessionEnd,
			Timestamp: "2025-09-29T19:00:03Z",
			SessionID: "s1",
			Reason:    "completed",
		},
	}

	for name, env := range cases {
		if errs := Validate(env); len(errs) != 0 {
			t.Errorf("%s: unexpected errors %v", name, errs)
		}
	}
}

func TestMissingRequiredFields(t *testing.T) {
	errs := Validate(&event.Envelope{})
	got := fieldNames(errs)
	for _, want := range []string{"eventType", "timestamp", "sessionId"} {
		found := false
		for _, f := range got {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected error for field %q, got %v", want, got)
		}
	}
}

func TestMissingTimestampNamedExplicitly(t *testing.T) {
	env := validStart()
	env.Timestamp = ""
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "timestamp" || errs[0].Message != "required" {
		t.Errorf("Expected single timestamp/required error, got %v", errs)
	}
}

func TestBadTimestampFormat(t *testing.T) {
	env := validStart()
	env.Timestamp = "29/09/2025 19:00"
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "timestamp" {
		t.Errorf("Expected timestamp format error, got %v", errs)
	}
}

func TestUnknownEventType(t *testing.T) {
	env := validStart()
	env.EventType = "SessionPause"
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "eventType" {
		t.Errorf("Expected eventType error, got %v", errs)
	}
}

func TestUserPromptRequiresPrompt(t *testing.T) {
	env := &event.Envelope{
		EventType: event.TypeUserPrompt,
		Timestamp: "2025-09-29T19:00:00Z",
		SessionID: "s1",
	}
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "prompt" {
		t.Errorf("Expected prompt error, got %v", errs)
	}
}

func TestOversizedPromptRejected(t *testing.T) {
	env := &event.Envelope{
		EventType: event.TypeUserPrompt,
		Timestamp: "2025-09-29T19:00:00Z",
		SessionID: "s1",
		Prompt:    strings.Repeat("a", MaxPromptBytes+1),
	}
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "prompt" {
		t.Errorf("Expected prompt size error, got %v", errs)
	}
}

func TestOversizedToolPayloadRejected(t *testing.T) {
	env := &event.Envelope{
		EventType: event.TypeToolUse,
		Timestamp: "2025-09-29T19:00:00Z",
		SessionID: "s1",
		ToolName:  "Bash",
		ToolInput: []byte(`"` + strings.Repeat("x", MaxToolPayloadBytes) + `"`),
	}
	errs := Validate(env)
	if len(errs) != 1 || errs[0].Field != "toolInput" {
		t.Errorf("Expected toolInput size error, got %v", errs)
	}
}
