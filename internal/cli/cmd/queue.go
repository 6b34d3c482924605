package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookline-systems/hookline/internal/producer/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the retry queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued and dead-lettered events",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queue.Open(queue.Config{Dir: cfg.QueueDir})
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		items, err := q.List(limit)
		if err != nil {
			return err
		}

		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(items)
		}

		stats, err := q.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d  in-flight: %d  dead: %d\n\n", stats.Pending, stats.InFlight, stats.Dead)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REQUEST ID\tTYPE\tSESSION\tRETRIES\tNEXT RETRY\tLAST ERROR")
		for _, item := range items {
			next := item.NextRetryAt.Local().Format(time.RFC3339)
			if item.DeadReason != "" {
				next = "dead: " + item.DeadReason
			}
			lastErr := ""
			if item.LastError != nil {
				lastErr = item.LastError.Message
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				item.RequestID, item.Envelope.EventType, item.Envelope.SessionID,
				item.RetryCount, next, lastErr)
		}
		return w.Flush()
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead-lettered events",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queue.Open(queue.Config{Dir: cfg.QueueDir})
		if err != nil {
			return err
		}
		removed, err := q.PurgeDead()
		if err != nil {
			return err
		}
		fmt.Printf("purged %d dead-lettered events\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queuePurgeCmd)

	queueListCmd.Flags().Int("limit", 50, "maximum items to list (0 = all)")
	queueListCmd.Flags().Bool("json", false, "output as JSON")
}
