package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookline-systems/hookline/internal/producer/emitter"
	"github.com/hookline-systems/hookline/internal/producer/logging"
	"github.com/hookline-systems/hookline/internal/producer/queue"
	"github.com/hookline-systems/hookline/pkg/event"
	"github.com/hookline-systems/hookline/pkg/ident"
)

var emitCmd = &cobra.Command{
	Use:   "emit <event-type>",
	Short: "Send one lifecycle event",
	Long: `Send one lifecycle event to the collector. The payload is read
from stdin as JSON when piped; flags override individual fields.

emit always exits 0: transmission failures are queued for retry and
recorded in the logs, never surfaced to the invoking hook.`,
	Example: `  echo '{"sessionId":"s1"}' | hookline emit SessionStart
  hookline emit UserPrompt --session s1 --prompt "fix the tests"
  hookline emit ToolUse --session s1 --tool Read`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := &event.Envelope{
			EventType: event.Type(args[0]),
			RequestID: ident.NewRequestID(),
			TraceID:   traceID(),
		}

		// Stdin payload first, flags override.
		if payload := readStdin(); len(payload) > 0 {
			// Unknown fields are tolerated: hooks forward whatever
			// the agent hands them.
			_ = json.Unmarshal(payload, env)
		}
		applyEmitFlags(cmd, env)
		if env.Timestamp == "" {
			env.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}

		log, err := logging.Open(logging.Config{Dir: cfg.LogDir})
		if err != nil {
			// No logger means no visibility, but the contract holds:
			// exit clean.
			fmt.Fprintf(os.Stderr, "hookline: %v\n", err)
			return nil
		}
		defer log.Close()

		q, err := queue.Open(queue.Config{Dir: cfg.QueueDir, MaxRetries: cfg.MaxRetries})
		if err != nil {
			log.Error("open queue", logging.Fields{
				RequestID: env.RequestID,
				Context:   map[string]any{"error": err.Error()},
			})
			return nil
		}

		em := emitter.New(emitter.Config{
			URL:     cfg.CollectorURL,
			Token:   cfg.Token,
			Timeout: cfg.SendTimeout,
		}, q, log)

		ctx := context.Background()

		// Opportunistically flush eligible retries before sending the
		// current event, so queued items do not wait for an operator.
		em.DrainOnce(ctx)

		em.Send(ctx, env)
		return nil
	},
}

func applyEmitFlags(cmd *cobra.Command, env *event.Envelope) {
	if v, _ := cmd.Flags().GetString("session"); v != "" {
		env.SessionID = v
	}
	if v, _ := cmd.Flags().GetString("prompt"); v != "" {
		env.Prompt = v
	}
	if v, _ := cmd.Flags().GetString("tool"); v != "" {
		env.ToolName = v
	}
	if v, _ := cmd.Flags().GetString("reason"); v != "" {
		env.Reason = v
	}
	if v, _ := cmd.Flags().GetString("timestamp"); v != "" {
		env.Timestamp = v
	}
}

// traceID returns the trace identifier shared by all events of this
// producer session. Hooks export HOOKLINE_TRACE_ID once per session;
// without it each event gets its own trace.
func traceID() string {
	if v := os.Getenv("HOOKLINE_TRACE_ID"); v != "" {
		return v
	}
	return ident.NewTraceID()
}

func readStdin() []byte {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 2<<20))
	if err != nil {
		return nil
	}
	return data
}

func init() {
	rootCmd.AddCommand(emitCmd)

	emitCmd.Flags().StringP("session", "s", "", "session identifier")
	emitCmd.Flags().String("prompt", "", "prompt text (UserPrompt)")
	emitCmd.Flags().String("tool", "", "tool name (ToolUse)")
	emitCmd.Flags().String("reason", "", "end reason (SessionEnd)")
	emitCmd.Flags().String("timestamp", "", "event time, RFC3339 (default: now)")
}
