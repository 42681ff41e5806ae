package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskline",
		Short:         "Persistent priority job queue with retries and a dead letter queue",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "taskline.yaml", "path to config file")
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("TASKLINE_SERVER", "http://localhost:8080"), "taskline server URL for client commands")

	root.AddCommand(
		newServeCmd(),
		newEnqueueCmd(),
		newJobCmd(),
		newStatsCmd(),
		newDeadCmd(),
		newClearCmd(),
		newRateLimitCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
