package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/queue"
)

const (
	defaultPollMin           = 500 * time.Millisecond
	defaultPollMax           = 10 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
	defaultRecoveryInterval  = 60 * time.Second
)

// Pool drives N workers against the queue: poll with backoff when empty,
// claim, heartbeat while running, release with the right terminal status.
type Pool struct {
	Queue             *queue.Queue
	Runner            *Runner
	Logger            *slog.Logger
	Workers           int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RecoveryInterval  time.Duration

	draining atomic.Bool
}

// Shutdown flips the drain flag: workers finish their current job and
// refuse new claims.
func (p *Pool) Shutdown() { p.draining.Store(true) }

// Draining reports whether shutdown has been requested.
func (p *Pool) Draining() bool { return p.draining.Load() }

// Run blocks until ctx is cancelled and every worker has exited. Stale
// jobs are recovered once at startup and then on a periodic tick.
func (p *Pool) Run(ctx context.Context) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	heartbeat := p.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	timeout := p.HeartbeatTimeout
	if timeout <= 0 {
		timeout = queue.DefaultHeartbeatTimeout
	}
	recovery := p.RecoveryInterval
	if recovery <= 0 {
		recovery = defaultRecoveryInterval
	}

	if n, err := p.Queue.RecoverStale(ctx, timeout); err != nil {
		logger.Warn("startup stale recovery failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("startup recovered stale jobs", slog.Int("count", n))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.recoveryLoop(ctx, recovery, timeout, logger)
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id, heartbeat, logger.With(slog.Int("worker", id)))
		}(i)
	}

	wg.Wait()
}

func (p *Pool) recoveryLoop(ctx context.Context, interval, timeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Queue.RecoverStale(ctx, timeout); err != nil {
				logger.Warn("stale recovery failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Pool) workerLoop(ctx context.Context, id int, heartbeat time.Duration, logger *slog.Logger) {
	backoff := defaultPollMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if p.Draining() {
			return
		}

		job, err := p.Queue.ClaimNext(ctx, os.Getpid())
		if err != nil {
			if errors.Is(err, domain.ErrNoWork) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > defaultPollMax {
					backoff = defaultPollMax
				}
				continue
			}
			logger.Error("claim failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(defaultPollMax):
			}
			continue
		}
		backoff = defaultPollMin

		p.runJob(ctx, job, heartbeat, logger)
	}
}

// runJob executes one claimed job under a heartbeat ticker and releases
// it with the correct terminal status. A panic in the runner releases the
// job as failed; the worker keeps going.
func (p *Pool) runJob(ctx context.Context, job domain.Job, heartbeat time.Duration, logger *slog.Logger) {
	logger.Info("job started",
		slog.String("job", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("path", job.FilePath),
	)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				owned, err := p.Queue.Heartbeat(hbCtx, job.ID, os.Getpid())
				if err != nil {
					logger.Warn("heartbeat failed", slog.String("job", job.ID), slog.String("error", err.Error()))
				} else if !owned {
					logger.Warn("lost job ownership", slog.String("job", job.ID))
				}
			}
		}
	}()

	status := domain.JobFailed
	opts := queue.ReleaseOptions{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", slog.String("job", job.ID), slog.Any("error", r))
				opts.ErrorMessage = "internal error: job panicked"
			}
		}()
		status, opts = p.Runner.Run(ctx, job)
	}()

	stopHeartbeat()

	if err := p.Queue.Release(ctx, job.ID, status, opts); err != nil {
		logger.Error("release failed", slog.String("job", job.ID), slog.String("error", err.Error()))
	}

	logger.Info("job finished",
		slog.String("job", job.ID),
		slog.String("status", string(status)),
		slog.String("error", opts.ErrorMessage),
	)
}
