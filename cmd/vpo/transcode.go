package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/domain"
)

// transcodeCmd enqueues transcode jobs for the given paths; the daemon's
// workers pick them up.
func transcodeCmd(c *cli) *cobra.Command {
	var policyName string
	var priority int

	cmd := &cobra.Command{
		Use:   "transcode <paths...>",
		Short: "Enqueue transcode jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, interrupted := signalContext()
			defer stop()

			if policyName == "" {
				return fmt.Errorf("%w: --policy is required", domain.ErrConfig)
			}

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			var jobs []domain.Job
			for _, path := range args {
				if interrupted() {
					return errInterrupted
				}
				job, err := db.InsertJob(ctx, domain.JobTranscode, path, policyName, priority)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}

			return c.emit(jobs, func() {
				for _, job := range jobs {
					fmt.Printf("queued %s %s (priority %d)\n", job.ID, job.FilePath, job.Priority)
				}
			})
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", "", "policy to apply")
	cmd.Flags().IntVar(&priority, "priority", 100, "queue priority (lower runs sooner)")
	return cmd
}
