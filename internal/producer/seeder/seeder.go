// Package seeder generates synthetic agent sessions for load testing
// the collector.
package seeder

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hookline-systems/hookline/pkg/event"
	"github.com/hookline-systems/hookline/pkg/ident"
)

var toolNames = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob", "WebFetch"}

// Options shapes a generated run.
type Options struct {
	Sessions        int
	EventsPerMinMax [2]int
	TimeSpread      time.Duration
}

// GenerateSessions produces complete fake sessions: a SessionStart, a
// mix of prompts and tool uses, and a SessionEnd, each with fresh
// request IDs and one trace ID per session.
func GenerateSessions(opts Options) []*event.Envelope {
	if opts.Sessions <= 0 {
		opts.Sessions = 1
	}
	min, max := opts.EventsPerMinMax[0], opts.EventsPerMinMax[1]
	if min <= 0 {
		min = 3
	}
	if max < min {
		max = min + 5
	}

	now := time.Now()
	var out []*event.Envelope

	for s := 0; s < opts.Sessions; s++ {
		sessionID := fmt.Sprintf("seed-%s", gofakeit.UUID())
		traceID := ident.NewTraceID()
		start := now
		if opts.TimeSpread > 0 {
			start = now.Add(-time.Duration(rand.Int63n(int64(opts.TimeSpread))))
		}

		cursor := start
		out = append(out, newEnvelope(event.TypeSessionStart, sessionID, traceID, cursor))

		count := min + rand.Intn(max-min+1)
		for i := 0; i < count; i++ {
			cursor = cursor.Add(time.Duration(1+rand.Intn(30)) * time.Second)
			if rand.Intn(2) == 0 {
				env := newEnvelope(event.TypeUserPrompt, sessionID, traceID, cursor)
				env.Prompt = gofakeit.Paragraph(1, 3, 12, " ")
				out = append(out, env)
			} else {
				env := newEnvelope(event.TypeToolUse, sessionID, traceID, cursor)
				env.ToolName = toolNames[rand.Intn(len(toolNames))]
				input, _ := json.Marshal(map[string]string{
					"file_path": "/" + gofakeit.Word() + "/" + gofakeit.Word() + ".go",
				})
				env.ToolInput = input
				output, _ := json.Marshal(map[string]string{"result": gofakeit.Sentence(8)})
				env.ToolOutput = output
				out = append(out, env)
			}
		}

		cursor = cursor.Add(time.Duration(1+rand.Intn(60)) * time.Second)
		end := newEnvelope(event.TypeSessionEnd, sessionID, traceID, cursor)
		end.Reason = gofakeit.RandomString([]string{"completed", "interrupted", "timeout"})
		out = append(out, end)
	}
	return out
}

func newEnvelope(t event.Type, sessionID, traceID string, at time.Time) *event.Envelope {
	return &event.Envelope{
		EventType: t,
		Timestamp: at.UTC().Format(time.RFC3339),
		SessionID: sessionID,
		RequestID: ident.NewRequestID(),
		TraceID:   traceID,
	}
}
