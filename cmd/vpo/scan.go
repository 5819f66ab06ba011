package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/scanner"
)

func scanCmd(c *cli) *cobra.Command {
	var opts scanner.Options

	cmd := &cobra.Command{
		Use:   "scan <dirs...>",
		Short: "Scan directories into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, interrupted := signalContext()
			defer stop()

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			s := scanner.New(db, c.newProber(), c.logger)
			summary, err := s.Scan(ctx, args, opts)
			if err != nil {
				if interrupted() {
					return errInterrupted
				}
				return err
			}

			return c.emit(summary, func() {
				fmt.Printf("scanned %d file(s): %s probed, %d unchanged, %d pruned, %s\n",
					summary.Seen,
					color.GreenString("%d", summary.Probed),
					summary.Unchanged,
					summary.Pruned,
					errorCount(summary.Errors),
				)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "re-probe every file regardless of stat comparison")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "remove library rows for missing files")
	cmd.Flags().BoolVar(&opts.VerifyHash, "verify-hash", false, "verify content hashes of unchanged files")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without writing")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "parallel probe limit")
	return cmd
}

func errorCount(n int) string {
	if n == 0 {
		return "0 errors"
	}
	return color.RedString("%d error(s)", n)
}
