package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/evaluator"
	"github.com/randomparity/vpo/internal/executor"
	"github.com/randomparity/vpo/internal/policy"
	"github.com/randomparity/vpo/internal/probe"
	"github.com/randomparity/vpo/internal/queue"
	"github.com/randomparity/vpo/internal/scanner"
	"github.com/randomparity/vpo/internal/store"
)

// Runner turns one claimed job into work: apply and transcode drive the
// evaluate-plan-execute engine, scan delegates to the scanner, move
// relocates a file and its store row.
type Runner struct {
	DB        *store.DB
	Queue     *queue.Queue
	Prober    *probe.Prober
	Executor  *executor.Executor
	Scanner   *scanner.Scanner
	PolicyDir string
	LogDir    string
	Logger    *slog.Logger
}

// Run executes the job and reports the terminal status plus release
// details. Errors are recorded on the job row; the worker moves on.
func (r *Runner) Run(ctx context.Context, job domain.Job) (domain.JobStatus, queue.ReleaseOptions) {
	logger, closeLog := r.jobLogger(job.ID)
	defer closeLog()

	var err error
	opts := queue.ReleaseOptions{}

	switch job.Kind {
	case domain.JobScan:
		err = r.runScan(ctx, job, logger)
	case domain.JobApply, domain.JobTranscode:
		opts, err = r.runApply(ctx, job, logger)
	case domain.JobMove:
		opts, err = r.runMove(ctx, job, logger)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		logger.Error("job failed", slog.String("error", err.Error()))
		opts.ErrorMessage = err.Error()
		return domain.JobFailed, opts
	}
	return domain.JobCompleted, opts
}

// jobLogger tees job events into the per-job log file under the data
// dir's logs directory.
func (r *Runner) jobLogger(jobID string) (*slog.Logger, func()) {
	base := r.Logger
	if base == nil {
		base = slog.Default()
	}
	if r.LogDir == "" {
		return base, func() {}
	}
	path := filepath.Join(r.LogDir, jobID+".log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		base.Warn("job log file unavailable", slog.String("path", path), slog.String("error", err.Error()))
		return base, func() {}
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), nil)).With(slog.String("job", jobID))
	return logger, func() { _ = f.Close() }
}

func (r *Runner) runScan(ctx context.Context, job domain.Job, logger *slog.Logger) error {
	if r.Scanner == nil {
		return errors.New("scanner not configured")
	}
	summary, err := r.Scanner.Scan(ctx, []string{job.FilePath}, scanner.Options{})
	if err != nil {
		return err
	}
	logger.Info("scan finished",
		slog.Int("seen", summary.Seen),
		slog.Int("probed", summary.Probed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("errors", summary.Errors),
	)
	return nil
}

// runApply is the apply/transcode engine: policy + probed state in,
// evaluated plan persisted, executed, store refreshed from a re-probe.
func (r *Runner) runApply(ctx context.Context, job domain.Job, logger *slog.Logger) (queue.ReleaseOptions, error) {
	opts := queue.ReleaseOptions{}

	if !job.PolicyName.Valid || job.PolicyName.String == "" {
		return opts, fmt.Errorf("%w: %s job has no policy", domain.ErrConfig, job.Kind)
	}
	pol, err := policy.LoadFile(filepath.Join(r.PolicyDir, job.PolicyName.String+".yaml"))
	if err != nil {
		return opts, err
	}

	info, warnings, err := r.Prober.Probe(ctx, job.FilePath)
	if err != nil {
		return opts, err
	}
	for _, w := range warnings {
		logger.Warn("probe warning", slog.String("warning", w))
	}

	fileID, err := r.DB.UpsertFile(ctx, info, "")
	if err != nil {
		return opts, err
	}
	analyses, err := r.DB.LoadAnalyses(ctx, fileID)
	if err != nil {
		return opts, err
	}

	plan, err := evaluator.Evaluate(pol, info, analyses)
	if err != nil {
		return opts, err
	}
	for _, w := range plan.Warnings {
		logger.Warn("plan warning", slog.String("warning", w))
	}

	planID, err := r.DB.InsertPlan(ctx, job.ID, plan)
	if err != nil {
		return opts, err
	}

	if plan.IsEmpty() {
		logger.Info("plan is empty; nothing to do")
		// Auto-flow: an empty plan is approved and executed as a no-op.
		_ = r.DB.TransitionPlan(ctx, planID, domain.PlanPending, domain.PlanApproved)
		_ = r.DB.TransitionPlan(ctx, planID, domain.PlanApproved, domain.PlanExecuted)
		opts.OutputPath = job.FilePath
		return opts, nil
	}

	// Job-driven plans are auto-approved; the pending state exists for the
	// HTTP review flow.
	if err := r.DB.TransitionPlan(ctx, planID, domain.PlanPending, domain.PlanApproved); err != nil {
		return opts, err
	}

	execOpts := executor.Options{
		FallbackToCPU: true,
		ProgressFn:    r.progressFn(ctx, job.ID, info.Duration),
	}
	if tc := firstTranscode(pol); tc != nil {
		execOpts.Hardware = tc.HardwareMode()
		execOpts.FallbackToCPU = tc.CPUFallback()
		execOpts.CRF = tc.CRF
		execOpts.Preset = tc.Preset
	}

	result, err := r.Executor.Execute(ctx, plan, info, execOpts)
	if err != nil {
		_ = r.DB.TransitionPlan(ctx, planID, domain.PlanApproved, domain.PlanFailed)
		return opts, err
	}
	_ = r.DB.TransitionPlan(ctx, planID, domain.PlanApproved, domain.PlanExecuted)

	opts.OutputPath = result.OutputPath
	opts.BackupPath = result.BackupPath

	if result.Stats != nil {
		result.Stats.JobID = job.ID
		if err := r.DB.InsertProcessingStats(ctx, *result.Stats); err != nil {
			logger.Warn("stats row not recorded", slog.String("error", err.Error()))
		}
	}

	// The executor invalidated the stored FileInfo: re-probe and refresh.
	if result.OutputPath != job.FilePath {
		if err := r.DB.RenameFile(ctx, job.FilePath, result.OutputPath); err != nil {
			logger.Warn("store rename failed", slog.String("error", err.Error()))
		}
	}
	refreshed, _, err := r.Prober.Probe(ctx, result.OutputPath)
	if err != nil {
		logger.Warn("post-run probe failed", slog.String("error", err.Error()))
		return opts, nil
	}
	if _, err := r.DB.UpsertFile(ctx, refreshed, ""); err != nil {
		logger.Warn("store refresh failed", slog.String("error", err.Error()))
	}

	logger.Info("apply finished",
		slog.String("output", result.OutputPath),
		slog.Int("actions", len(plan.Actions)),
	)
	return opts, nil
}

func (r *Runner) runMove(ctx context.Context, job domain.Job, logger *slog.Logger) (queue.ReleaseOptions, error) {
	opts := queue.ReleaseOptions{}
	var detail struct {
		Destination string `json:"destination"`
	}
	if job.ProgressJSON.Valid {
		_ = json.Unmarshal([]byte(job.ProgressJSON.String), &detail)
	}
	if detail.Destination == "" {
		return opts, errors.New("move job has no destination")
	}
	if err := os.MkdirAll(filepath.Dir(detail.Destination), 0o755); err != nil {
		return opts, err
	}
	if err := os.Rename(job.FilePath, detail.Destination); err != nil {
		return opts, err
	}
	if err := r.DB.RenameFile(ctx, job.FilePath, detail.Destination); err != nil {
		logger.Warn("store rename failed", slog.String("error", err.Error()))
	}
	opts.OutputPath = detail.Destination
	return opts, nil
}

// progressFn converts executor progress samples into job-row updates.
func (r *Runner) progressFn(ctx context.Context, jobID string, durationSeconds float64) func(executor.Progress) {
	return func(p executor.Progress) {
		percent := 0.0
		if durationSeconds > 0 && p.TimeSeconds > 0 {
			percent = p.TimeSeconds / durationSeconds * 100
			if percent > 100 {
				percent = 100
			}
		}
		detail, _ := json.Marshal(map[string]any{
			"frame":       p.Frame,
			"fps":         p.FPS,
			"timeSeconds": p.TimeSeconds,
			"bitrateKbps": p.BitrateKbps,
			"speed":       p.Speed,
		})
		_ = r.DB.UpdateJobProgress(ctx, jobID, percent, string(detail))
	}
}

// firstTranscode finds the first transcode config in the policy, which
// carries the hardware preference for the executor.
func firstTranscode(pol *policy.Policy) *policy.TranscodeConfig {
	for pi := range pol.Phases {
		if pol.Phases[pi].Transcode != nil {
			return pol.Phases[pi].Transcode
		}
	}
	return nil
}
