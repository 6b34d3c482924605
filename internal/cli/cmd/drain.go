package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookline-systems/hookline/internal/producer/emitter"
	"github.com/hookline-systems/hookline/internal/producer/logging"
	"github.com/hookline-systems/hookline/internal/producer/queue"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Retry queued events now",
	Long: `Flush pending retries without waiting for the next lifecycle
trigger. Exits 0 regardless of individual item outcomes; per-item
results are visible in the queue log and the collector's audit rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.Open(logging.Config{Dir: cfg.LogDir})
		if err != nil {
			fmt.Fprintf(os.Stderr, "hookline: %v\n", err)
			return nil
		}
		defer log.Close()

		q, err := queue.Open(queue.Config{Dir: cfg.QueueDir, MaxRetries: cfg.MaxRetries})
		if err != nil {
			fmt.Fprintf(os.Stderr, "hookline: %v\n", err)
			return nil
		}

		em := emitter.New(emitter.Config{
			URL:     cfg.CollectorURL,
			Token:   cfg.Token,
			Timeout: cfg.SendTimeout,
		}, q, log)

		delivered, failed := em.DrainOnce(context.Background())
		fmt.Printf("drained: %d delivered, %d failed\n", delivered, failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
}
