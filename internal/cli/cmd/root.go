package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookline-systems/hookline/internal/producer/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hookline",
	Short: "Agent lifecycle-event capture",
	Long: `hookline packages and transmits agent lifecycle events
(session start, prompt submission, tool invocation, session end) to the
collector service, with durable local queuing and retry on failure.

It is designed to be wired into an agent's lifecycle hooks: each
invocation drains any eligible queued retries, then sends its own
event, and always exits cleanly so telemetry can never break the host.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.hookline/config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}
