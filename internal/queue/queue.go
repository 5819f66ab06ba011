package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/metrics"
	"github.com/randomparity/vpo/internal/store"
)

// DefaultHeartbeatTimeout is how long a running job may go without a
// heartbeat before recovery returns it to the queue.
const DefaultHeartbeatTimeout = 300 * time.Second

// Queue coordinates workers over the jobs table. The store's single
// writer plus the immediate-locking transaction make ClaimNext an atomic
// single-claim: two concurrent claims can never return the same row.
type Queue struct {
	db     *store.DB
	logger *slog.Logger
}

func New(db *store.DB, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{db: db, logger: logger}
}

// ClaimNext atomically claims the highest-priority queued job. Returns
// ErrNoWork when the queue is empty or the claim lost a lock race; the
// caller retries on its next poll tick.
func (q *Queue) ClaimNext(ctx context.Context, workerPID int) (domain.Job, error) {
	if workerPID == 0 {
		workerPID = os.Getpid()
	}
	now := store.NowUTC()

	// The writer DSN carries _txlock=immediate, so this transaction takes
	// the write lock up front and serializes claims across processes.
	tx, err := q.db.Write().BeginTxx(ctx, nil)
	if err != nil {
		if isLockContention(err) {
			return domain.Job{}, domain.ErrNoWork
		}
		return domain.Job{}, err
	}
	defer tx.Rollback()

	// Mutating jobs (anything but scan) are held back while another
	// mutating job runs against the same file; scans may overlap freely.
	var jobID string
	err = tx.GetContext(ctx, &jobID, `
		SELECT j.id FROM jobs j
		WHERE j.status = 'queued'
		  AND (j.kind = 'scan' OR NOT EXISTS (
			SELECT 1 FROM jobs r
			WHERE r.status = 'running' AND r.kind != 'scan' AND r.file_path = j.file_path))
		ORDER BY j.priority ASC, j.created_at ASC
		LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Job{}, domain.ErrNoWork
		}
		if isLockContention(err) {
			q.logger.Warn("lock contention while claiming job", slog.String("error", err.Error()))
			return domain.Job{}, domain.ErrNoWork
		}
		return domain.Job{}, err
	}

	// The status re-check is the CAS: a claim that raced past an earlier
	// rollback updates zero rows and returns no work.
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'running', started_at = ?, worker_pid = ?, worker_heartbeat = ?
		WHERE id = ? AND status = 'queued'`,
		now, workerPID, now, jobID,
	)
	if err != nil {
		if isLockContention(err) {
			return domain.Job{}, domain.ErrNoWork
		}
		return domain.Job{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Job{}, err
	}
	if affected == 0 {
		return domain.Job{}, domain.ErrNoWork
	}

	if err := tx.Commit(); err != nil {
		if isLockContention(err) {
			return domain.Job{}, domain.ErrNoWork
		}
		return domain.Job{}, err
	}

	metrics.JobsClaimedTotal.Inc()
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// GetJob loads one job row.
func (q *Queue) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return q.db.GetJob(ctx, id)
}

// Heartbeat asserts continued ownership of a running job. A false return
// means the row is no longer running under this worker (recovered or
// released) and the worker should stop treating the job as its own.
func (q *Queue) Heartbeat(ctx context.Context, jobID string, workerPID int) (bool, error) {
	if workerPID == 0 {
		workerPID = os.Getpid()
	}
	res, err := q.db.Write().ExecContext(ctx, `
		UPDATE jobs SET worker_heartbeat = ?, worker_pid = ?
		WHERE id = ? AND status = 'running'`,
		store.NowUTC(), workerPID, jobID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ReleaseOptions carries the terminal details recorded on release.
type ReleaseOptions struct {
	ErrorMessage string
	OutputPath   string
	BackupPath   string
}

// Release moves a job to a terminal state, clearing the worker columns.
// Release is the only legitimate way out of running.
func (q *Queue) Release(ctx context.Context, jobID string, status domain.JobStatus, opts ReleaseOptions) error {
	if !status.Terminal() {
		return fmt.Errorf("release requires a terminal status, got %s", status)
	}
	_, err := q.db.Write().ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, completed_at = ?, error_message = ?, output_path = ?, backup_path = ?,
		    worker_pid = NULL, worker_heartbeat = NULL
		WHERE id = ?`,
		string(status), store.NowUTC(),
		nullable(opts.ErrorMessage), nullable(opts.OutputPath), nullable(opts.BackupPath),
		jobID,
	)
	if err == nil {
		metrics.JobsCompletedTotal.WithLabelValues(string(status)).Inc()
	}
	return err
}

// RecoverStale returns to queued every running job whose heartbeat is
// strictly older than the timeout, clearing worker and progress state.
// Safe against resurrected workers: the claim CAS means a zombie cannot
// win its row back.
func (q *Queue) RecoverStale(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	cutoff := store.FormatTime(time.Now().Add(-timeout))

	res, err := q.db.Write().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', started_at = NULL, worker_pid = NULL, worker_heartbeat = NULL,
		    progress_percent = 0, progress_json = NULL
		WHERE status = 'running' AND worker_heartbeat < ?`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		q.logger.Info("recovered stale jobs", slog.Int64("count", affected))
		metrics.JobsRecoveredTotal.Add(float64(affected))
	}
	return int(affected), nil
}

// Cancel cancels a queued job. Running jobs are not cancellable through
// the queue; their owning worker must observe a separate signal.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	res, err := q.db.Write().ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status = 'queued'`,
		store.NowUTC(), jobID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Requeue returns a failed or cancelled job to the queue for retry,
// clearing all worker, timing, and progress fields.
func (q *Queue) Requeue(ctx context.Context, jobID string) (bool, error) {
	res, err := q.db.Write().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', started_at = NULL, completed_at = NULL, error_message = NULL,
		    worker_pid = NULL, worker_heartbeat = NULL, progress_percent = 0, progress_json = NULL
		WHERE id = ? AND status IN ('failed', 'cancelled')`,
		jobID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Stats counts jobs per status.
func (q *Queue) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Read().QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"queued": 0, "running": 0, "completed": 0, "failed": 0, "cancelled": 0, "total": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

// HealthMetrics reports the queue numbers surfaced by /health.
type HealthMetrics struct {
	JobsQueued    int `json:"jobsQueued"`
	JobsRunning   int `json:"jobsRunning"`
	ActiveWorkers int `json:"activeWorkers"`
	RecentErrors  int `json:"recentErrors"`
}

// Health computes queue depth, distinct active workers, and failures in
// the last 24 hours.
func (q *Queue) Health(ctx context.Context) (HealthMetrics, error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return HealthMetrics{}, err
	}
	m := HealthMetrics{JobsQueued: stats["queued"], JobsRunning: stats["running"]}

	if err := q.db.Read().GetContext(ctx, &m.ActiveWorkers, `
		SELECT COUNT(DISTINCT worker_pid) FROM jobs
		WHERE status = 'running' AND worker_pid IS NOT NULL`); err != nil {
		return HealthMetrics{}, err
	}

	cutoff := store.FormatTime(time.Now().Add(-24 * time.Hour))
	if err := q.db.Read().GetContext(ctx, &m.RecentErrors, `
		SELECT COUNT(*) FROM jobs WHERE status = 'failed' AND completed_at > ?`, cutoff); err != nil {
		return HealthMetrics{}, err
	}

	metrics.QueueDepth.Set(float64(m.JobsQueued))
	metrics.ActiveWorkers.Set(float64(m.ActiveWorkers))
	return m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isLockContention distinguishes sqlite busy/locked errors from real
// failures; contention converts to ErrNoWork and the next tick retries.
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
