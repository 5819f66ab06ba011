package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	apihttp "github.com/randomparity/vpo/internal/api/http"
	"github.com/randomparity/vpo/internal/metrics"
	"github.com/randomparity/vpo/internal/queue"
	"github.com/randomparity/vpo/internal/scanner"
	"github.com/randomparity/vpo/internal/telemetry"
	"github.com/randomparity/vpo/internal/worker"
)

func serveCmd(c *cli) *cobra.Command {
	var addr string
	var workers int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the VPO daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, _ := signalContext()
			defer stop()

			metrics.Register(prometheus.DefaultRegisterer)

			shutdownTracer, err := telemetry.Init(ctx, "vpo")
			if err != nil {
				c.logger.Warn("otel init failed", slog.String("error", err.Error()))
			}
			defer func() {
				if shutdownTracer != nil {
					_ = shutdownTracer(context.Background())
				}
			}()

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if addr == "" {
				addr = c.cfg.HTTPAddr
			}
			if workers <= 0 {
				workers = c.cfg.Workers
			}

			c.logger.Info("configuration loaded",
				slog.String("service", "vpo"),
				slog.String("httpAddr", addr),
				slog.String("dataDir", c.cfg.DataDir),
				slog.String("database", c.cfg.DatabaseFile()),
				slog.Int("workers", workers),
			)

			registry := c.newRegistry(ctx)
			prober := c.newProber()
			exec := c.newExecutor(registry)
			q := queue.New(db, c.logger)

			runner := &worker.Runner{
				DB:        db,
				Queue:     q,
				Prober:    prober,
				Executor:  exec,
				Scanner:   scanner.New(db, prober, c.logger),
				PolicyDir: c.cfg.PoliciesDir(),
				LogDir:    c.cfg.LogsDir(),
				Logger:    c.logger,
			}
			pool := &worker.Pool{
				Queue:   q,
				Runner:  runner,
				Logger:  c.logger,
				Workers: workers,
			}

			workerCtx, stopWorkers := context.WithCancel(context.Background())
			defer stopWorkers()
			poolDone := make(chan struct{})
			go func() {
				defer close(poolDone)
				pool.Run(workerCtx)
			}()

			handler := apihttp.NewServer(db,
				apihttp.WithLogger(c.logger),
				apihttp.WithQueue(q),
				apihttp.WithAuthToken(c.cfg.AuthToken),
				apihttp.WithJobLogsDir(c.cfg.LogsDir()),
			)

			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			c.logger.Info("server started", slog.String("addr", addr))

			select {
			case <-ctx.Done():
				c.logger.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			// Drain: refuse new claims, flip health to 503, let in-flight
			// jobs finish, then stop the HTTP surface.
			handler.BeginShutdown()
			pool.Shutdown()

			drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer drainCancel()
			select {
			case <-poolDone:
			case <-drainCtx.Done():
				c.logger.Warn("workers did not drain in time; cancelling")
				stopWorkers()
				<-poolDone
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			handler.Close()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				c.logger.Warn("http shutdown error", slog.String("error", err.Error()))
			}

			c.logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (default from config)")
	return cmd
}
