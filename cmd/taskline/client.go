package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	taskline "github.com/taskline/taskline/clients/go"
)

func newClient() *taskline.Client {
	return taskline.NewClient(serverURL)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEnqueueCmd() *cobra.Command {
	var (
		priority    string
		maxAttempts int
		delay       time.Duration
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue <type> [payload-json]",
		Short: "Add a job",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload interface{}
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("payload is not valid JSON")
				}
				payload = json.RawMessage(args[1])
			}

			jobID, err := newClient().Enqueue(cmd.Context(), args[0], payload, &taskline.EnqueueOptions{
				Priority:    priority,
				MaxAttempts: maxAttempts,
				Delay:       delay,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}
			fmt.Println(jobID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "critical, high, normal or low")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (server default when 0)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "hold the job back for this long")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "deadline passed to the handler")
	return cmd
}

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := newClient().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newClient().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func newDeadCmd() *cobra.Command {
	dead := &cobra.Command{
		Use:   "dead",
		Short: "Inspect and retry dead jobs",
	}

	dead.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dead jobs, most recent last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := newClient().DeadLetter(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	})

	dead.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Move a dead job back to the queue with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().RetryDead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("requeued %s\n", args[0])
			return nil
		},
	})

	return dead
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed jobs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := newClient().ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d completed jobs\n", removed)
			return nil
		},
	}
}

func newRateLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate-limit <type> [burst per-second]",
		Short: "Show or set the enqueue rate limit of a job type",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("expected <type> or <type> <burst> <per-second>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				rl, err := client.GetRateLimit(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(rl)
			}

			burst, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid burst: %w", err)
			}
			perSecond, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid per-second: %w", err)
			}
			rl, err := client.SetRateLimit(cmd.Context(), args[0], burst, perSecond)
			if err != nil {
				return err
			}
			return printJSON(rl)
		},
	}
}
