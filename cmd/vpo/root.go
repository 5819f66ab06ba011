package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randomparity/vpo/internal/app"
	"github.com/randomparity/vpo/internal/executor"
	"github.com/randomparity/vpo/internal/probe"
	"github.com/randomparity/vpo/internal/store"
	"github.com/randomparity/vpo/internal/tools"
)

var errInterrupted = errors.New("interrupted")

// cli carries the resolved environment shared by every verb.
type cli struct {
	cfg    app.Config
	logger *slog.Logger
	json   bool
}

func rootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "vpo",
		Short:         "Policy-driven video library manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load()
			if err != nil {
				return err
			}
			if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
				cfg.DataDir = dataDir
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				cfg.LogLevel = level
			}
			c.cfg = cfg
			c.json, _ = cmd.Flags().GetBool("json")
			c.logger = newLogger(cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(c.logger)
			return nil
		},
	}

	root.PersistentFlags().String("data-dir", "", "data directory (default $VPO_DATA_DIR or ~/.vpo)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("json", false, "machine-readable output")

	root.AddCommand(
		initCmd(c),
		scanCmd(c),
		applyCmd(c),
		transcodeCmd(c),
		policyCmd(c),
		policiesCmd(c),
		maintainCmd(c),
		pluginsCmd(c),
		serveCmd(c),
	)
	return root
}

// signalContext returns a context cancelled by SIGINT/SIGTERM, and a
// check for whether an interrupt caused the cancellation.
func signalContext() (context.Context, context.CancelFunc, func() bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	interrupted := func() bool { return ctx.Err() != nil }
	return ctx, stop, interrupted
}

// openStore opens and migrates the library store.
func (c *cli) openStore() (*store.DB, error) {
	if err := c.cfg.EnsureLayout(); err != nil {
		return nil, err
	}
	db, err := store.Open(c.cfg.DatabaseFile(), c.cfg.DBTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newRegistry detects the external media tools.
func (c *cli) newRegistry(ctx context.Context) *tools.Registry {
	registry := tools.NewRegistry(tools.Paths{
		FFmpeg:      c.cfg.FFmpegPath,
		FFprobe:     c.cfg.FFprobePath,
		MkvMerge:    c.cfg.MkvMergePath,
		MkvPropEdit: c.cfg.MkvPropEditPath,
	}, c.logger)
	registry.Detect(ctx)
	return registry
}

func (c *cli) newProber() *probe.Prober {
	return probe.New(c.cfg.FFprobePath)
}

func (c *cli) newExecutor(registry *tools.Registry) *executor.Executor {
	return executor.New(registry, executor.Config{
		TempDir:     c.cfg.TempDir,
		BaseTimeout: c.cfg.ExecBaseTimeout,
		KeepBackup:  c.cfg.KeepBackup,
	}, c.logger)
}

// emit prints a result either as JSON or through the supplied
// human-readable printer.
func (c *cli) emit(payload any, human func()) error {
	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	human()
	return nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
