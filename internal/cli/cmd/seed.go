package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hookline-systems/hookline/internal/producer/emitter"
	"github.com/hookline-systems/hookline/internal/producer/logging"
	"github.com/hookline-systems/hookline/internal/producer/queue"
	"github.com/hookline-systems/hookline/internal/producer/seeder"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send synthetic sessions for load testing",
	Example: `  hookline seed --sessions 10
  hookline seed --sessions 100 --spread 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, _ := cmd.Flags().GetInt("sessions")
		spread, _ := cmd.Flags().GetDuration("spread")

		log, err := logging.Open(logging.Config{Dir: cfg.LogDir})
		if err != nil {
			return err
		}
		defer log.Close()

		q, err := queue.Open(queue.Config{Dir: cfg.QueueDir, MaxRetries: cfg.MaxRetries})
		if err != nil {
			return err
		}

		em := emitter.New(emitter.Config{
			URL:     cfg.CollectorURL,
			Token:   cfg.Token,
			Timeout: cfg.SendTimeout,
		}, q, log)

		envelopes := seeder.GenerateSessions(seeder.Options{
			Sessions:   sessions,
			TimeSpread: spread,
		})

		ctx := context.Background()
		delivered, queued, rejected := 0, 0, 0
		start := time.Now()
		for _, env := range envelopes {
			res := em.Send(ctx, env)
			switch {
			case res.Delivered:
				delivered++
			case res.Queued:
				queued++
			default:
				rejected++
			}
		}

		fmt.Printf("seeded %d events across %d sessions in %s (%d delivered, %d queued, %d rejected)\n",
			len(envelopes), sessions, time.Since(start).Round(time.Millisecond), delivered, queued, rejected)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Int("sessions", 1, "number of synthetic sessions")
	seedCmd.Flags().Duration("spread", 0, "distribute session start times over this window")
}
