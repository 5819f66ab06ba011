package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/evaluator"
	"github.com/randomparity/vpo/internal/executor"
	"github.com/randomparity/vpo/internal/policy"
	"github.com/randomparity/vpo/internal/store"
)

func applyCmd(c *cli) *cobra.Command {
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "apply <policy> <paths...>",
		Short: "Apply a policy to files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, interrupted := signalContext()
			defer stop()

			policyName := args[0]
			paths := args[1:]

			pol, err := policy.LoadFile(filepath.Join(c.cfg.PoliciesDir(), policyName+".yaml"))
			if err != nil {
				return err
			}

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			registry := c.newRegistry(ctx)
			exec := c.newExecutor(registry)
			prober := c.newProber()

			type fileResult struct {
				Path    string   `json:"path"`
				Actions int      `json:"actions"`
				Applied bool     `json:"applied"`
				Error   string   `json:"error,omitempty"`
				Warns   []string `json:"warnings,omitempty"`
			}
			var results []fileResult
			failures := 0

			for _, path := range paths {
				if interrupted() {
					return errInterrupted
				}
				res := fileResult{Path: path}

				err := c.applyOne(ctx, db, pol, prober, exec, path, dryRun, &res.Actions, &res.Warns)
				if err != nil {
					res.Error = err.Error()
					failures++
					var failErr *domain.ConditionalFailError
					if verbose || errors.As(err, &failErr) {
						c.logger.Error("apply failed", "path", path, "error", err)
					}
				} else {
					res.Applied = !dryRun && res.Actions > 0
				}
				results = append(results, res)
			}

			emitErr := c.emit(results, func() {
				for _, res := range results {
					switch {
					case res.Error != "":
						fmt.Printf("%s %s: %s\n", color.RedString("FAIL"), res.Path, res.Error)
					case res.Actions == 0:
						fmt.Printf("%s %s: nothing to do\n", color.CyanString("OK  "), res.Path)
					case dryRun:
						fmt.Printf("%s %s: %d action(s) planned\n", color.YellowString("PLAN"), res.Path, res.Actions)
					default:
						fmt.Printf("%s %s: %d action(s) applied\n", color.GreenString("OK  "), res.Path, res.Actions)
					}
					if verbose {
						for _, w := range res.Warns {
							fmt.Printf("     warning: %s\n", w)
						}
					}
				}
			})
			if emitErr != nil {
				return emitErr
			}
			if failures == len(paths) && failures > 0 {
				return fmt.Errorf("all %d file(s) failed", failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate and show the plan without executing")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show per-file detail")
	return cmd
}

func (c *cli) applyOne(ctx context.Context, db *store.DB, pol *policy.Policy, prober interface {
	Probe(context.Context, string) (domain.FileInfo, []string, error)
}, exec *executor.Executor, path string, dryRun bool, actions *int, warns *[]string) error {
	info, probeWarns, err := prober.Probe(ctx, path)
	if err != nil {
		return err
	}
	*warns = append(*warns, probeWarns...)

	fileID, err := db.UpsertFile(ctx, info, "")
	if err != nil {
		return err
	}
	analyses, err := db.LoadAnalyses(ctx, fileID)
	if err != nil {
		return err
	}

	plan, err := evaluator.Evaluate(pol, info, analyses)
	if err != nil {
		return err
	}
	*actions = len(plan.Actions)
	*warns = append(*warns, plan.Warnings...)

	if dryRun || plan.IsEmpty() {
		return nil
	}

	execOpts := executor.Options{FallbackToCPU: true}
	for pi := range pol.Phases {
		if tc := pol.Phases[pi].Transcode; tc != nil {
			execOpts.Hardware = tc.HardwareMode()
			execOpts.FallbackToCPU = tc.CPUFallback()
			execOpts.CRF = tc.CRF
			execOpts.Preset = tc.Preset
			break
		}
	}

	result, err := exec.Execute(ctx, plan, info, execOpts)
	if err != nil {
		return err
	}
	if result.Stats != nil {
		if err := db.InsertProcessingStats(ctx, *result.Stats); err != nil {
			c.logger.Warn("stats row not recorded", "error", err)
		}
	}

	if result.OutputPath != path {
		if err := db.RenameFile(ctx, path, result.OutputPath); err != nil {
			c.logger.Warn("store rename failed", "error", err)
		}
	}
	if refreshed, _, err := prober.Probe(ctx, result.OutputPath); err == nil {
		if _, err := db.UpsertFile(ctx, refreshed, ""); err != nil {
			c.logger.Warn("store refresh failed", "error", err)
		}
	}
	return nil
}
