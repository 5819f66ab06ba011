package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/queue"
)

func maintainCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Maintenance operations",
	}
	cmd.AddCommand(maintainLogsCmd(c), maintainAllCmd(c), maintainStatusCmd(c))
	return cmd
}

type maintainSummary struct {
	LogsCompressed int `json:"logsCompressed"`
	LogsDeleted    int `json:"logsDeleted"`
	TempsRemoved   int `json:"tempsRemoved"`
}

func maintainLogsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Compress and expire job logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary := maintainSummary{}
			if err := c.maintainLogs(&summary); err != nil {
				return err
			}
			return c.emit(summary, func() {
				fmt.Printf("logs: %d compressed, %d deleted\n", summary.LogsCompressed, summary.LogsDeleted)
			})
		},
	}
}

func maintainAllCmd(c *cli) *cobra.Command {
	var roots []string
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run every maintenance task",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary := maintainSummary{}
			if err := c.maintainLogs(&summary); err != nil {
				return err
			}
			if err := c.sweepOrphanedTemps(roots, &summary); err != nil {
				return err
			}
			return c.emit(summary, func() {
				fmt.Printf("logs: %d compressed, %d deleted; temps: %d removed\n",
					summary.LogsCompressed, summary.LogsDeleted, summary.TempsRemoved)
			})
		},
	}
	cmd.Flags().StringSliceVar(&roots, "roots", nil, "library roots to sweep for orphaned temp files")
	return cmd
}

func maintainStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, _ := signalContext()
			defer stop()

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := queue.New(db, c.logger).Stats(ctx)
			if err != nil {
				return err
			}
			return c.emit(stats, func() {
				fmt.Printf("jobs: %d queued, %d running, %d completed, %d failed, %d cancelled (%d total)\n",
					stats["queued"], stats["running"], stats["completed"],
					stats["failed"], stats["cancelled"], stats["total"])
			})
		},
	}
}

// maintainLogs gzips job logs older than the compression age and deletes
// anything older than the deletion age.
func (c *cli) maintainLogs(summary *maintainSummary) error {
	logsDir := c.cfg.LogsDir()
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	compressCutoff := time.Now().AddDate(0, 0, -c.cfg.LogCompressionDays)
	deleteCutoff := time.Now().AddDate(0, 0, -c.cfg.LogDeletionDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(logsDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(deleteCutoff) {
			if err := os.Remove(path); err == nil {
				summary.LogsDeleted++
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".log") && info.ModTime().Before(compressCutoff) {
			if err := gzipFile(path); err == nil {
				summary.LogsCompressed++
			}
		}
	}
	return nil
}

// sweepOrphanedTemps removes leftover .vpo_temp_* files under the given
// roots and the configured temp dir.
func (c *cli) sweepOrphanedTemps(roots []string, summary *maintainSummary) error {
	dirs := append([]string{}, roots...)
	if c.cfg.TempDir != "" {
		dirs = append(dirs, c.cfg.TempDir)
	}
	for _, root := range dirs {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if strings.HasPrefix(filepath.Base(path), ".vpo_temp_") {
				if err := os.Remove(path); err == nil {
					summary.TempsRemoved++
				}
			}
			return nil
		})
	}
	return nil
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
