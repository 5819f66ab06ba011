package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/metrics"
	"github.com/randomparity/vpo/internal/tools"
)

// output size ratios per target codec for the disk-space estimate.
var outputRatios = map[string]float64{
	"hevc": 0.5,
	"h265": 0.5,
	"h264": 0.8,
}

const (
	copyRatio = 1.0
	// Per-byte deadline rates: a remux moves bytes, a transcode chews them.
	remuxSecondsPerGB     = 60.0
	transcodeSecondsPerGB = 600.0
	suspiciousOutputRatio = 0.05
)

// Config is the executor's static configuration.
type Config struct {
	TempDir string
	// BaseTimeout seeds the per-run deadline; 0 disables deadlines.
	BaseTimeout time.Duration
	KeepBackup  bool
}

// Options carries per-run parameters from the policy and job runner.
type Options struct {
	Hardware      string
	FallbackToCPU bool
	CRF           *int
	Preset        string
	ProgressFn    func(Progress)
}

// Result is the executor's typed outcome.
type Result struct {
	Success    bool
	OutputPath string
	BackupPath string
	Message    string
	Stats      *domain.ProcessingStats
}

// Executor realizes Plans on disk with crash safety: backup before
// mutation, temp-then-rename writes, restore on every failure path.
type Executor struct {
	registry *tools.Registry
	logger   *slog.Logger
	cfg      Config
}

func New(registry *tools.Registry, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, cfg: cfg, logger: logger}
}

type strategy int

const (
	strategyInPlace strategy = iota
	strategyStreamCopy
	strategyRemux
)

// selectStrategy picks the cheapest back-end that can realize the plan.
func selectStrategy(plan domain.Plan) strategy {
	if plan.MetadataOnly() {
		if domain.NormalizeContainer(plan.SourceContainer) == "mkv" {
			return strategyInPlace
		}
		return strategyStreamCopy
	}
	return strategyRemux
}

// Execute realizes one Plan against the probed file it was computed from.
// An empty plan succeeds without touching the file.
func (x *Executor) Execute(ctx context.Context, plan domain.Plan, file domain.FileInfo, opts Options) (Result, error) {
	if plan.IsEmpty() {
		return Result{Success: true, OutputPath: plan.FilePath, Message: "no changes to apply"}, nil
	}

	preMTime := file.ModTime
	if stat, err := os.Stat(plan.FilePath); err == nil {
		preMTime = stat.ModTime()
	} else {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrPreflight, err)
	}

	if err := x.preflight(plan, file); err != nil {
		return Result{}, err
	}

	strat := selectStrategy(plan)
	start := time.Now()

	var result Result
	var err error
	switch strat {
	case strategyInPlace:
		result, err = x.executeInPlace(ctx, plan)
	case strategyStreamCopy:
		result, err = x.executeFFmpeg(ctx, plan, file, opts, false)
	case strategyRemux:
		result, err = x.executeFFmpeg(ctx, plan, file, opts, true)
	}
	if err != nil {
		metrics.ExecutorRunsTotal.WithLabelValues(strategyName(strat), "error").Inc()
		return result, err
	}

	if err := x.applyFileTimestamp(plan, preMTime); err != nil {
		x.logger.Warn("file timestamp not applied",
			slog.String("path", plan.FilePath),
			slog.String("error", err.Error()),
		)
	}

	if result.Stats != nil {
		result.Stats.DurationSeconds = time.Since(start).Seconds()
	}
	metrics.ExecutorRunsTotal.WithLabelValues(strategyName(strat), "ok").Inc()
	metrics.ExecutorRunDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

func strategyName(s strategy) string {
	switch s {
	case strategyInPlace:
		return "in_place"
	case strategyStreamCopy:
		return "stream_copy"
	default:
		return "remux"
	}
}

// preflight verifies tools, capabilities, and disk space before any
// mutation. Failures here leave the file untouched.
func (x *Executor) preflight(plan domain.Plan, file domain.FileInfo) error {
	strat := selectStrategy(plan)

	if strat == strategyInPlace {
		if _, err := x.registry.Require(tools.MkvPropEdit); err != nil {
			return fmt.Errorf("%w: plan needs in-place metadata editing", err)
		}
	} else {
		ffmpeg, err := x.registry.Require(tools.FFmpeg)
		if err != nil {
			return err
		}
		if target := remuxTarget(plan); target != "" {
			muxer := muxerFor(target)
			if muxer != "" && len(ffmpeg.Muxers) > 0 && !ffmpeg.HasMuxer(muxer) {
				return fmt.Errorf("%w: ffmpeg build lacks muxer %q for container %s",
					domain.ErrPreflight, muxer, target)
			}
		}
	}

	required := requiredBytes(plan, file.SizeBytes)
	if required > 0 {
		free, err := diskFreeBytes(filepath.Dir(plan.FilePath))
		if err != nil {
			x.logger.Warn("disk space check unavailable", slog.String("error", err.Error()))
		} else if free < required {
			return fmt.Errorf("%w: need %d bytes free, have %d", domain.ErrPreflight, required, free)
		}
	}

	return nil
}

// requiredBytes estimates the output footprint: input × codec ratio plus
// headroom for the backup copy. In-place edits need no reservation.
func requiredBytes(plan domain.Plan, inputSize int64) int64 {
	if selectStrategy(plan) == strategyInPlace {
		return 0
	}
	ratio := copyRatio
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionTranscodeVideo {
			if r, ok := outputRatios[strings.ToLower(a.TargetCodec)]; ok {
				ratio = r
			}
			break
		}
	}
	// Backup may be a full copy on a different filesystem.
	return int64(float64(inputSize)*ratio) + inputSize/10
}

// computeTimeout derives the run deadline from the configured base plus a
// size-proportional allowance; transcodes get a higher per-byte rate.
// A zero base means no deadline at all.
func (x *Executor) computeTimeout(sizeBytes int64, isTranscode bool) time.Duration {
	if x.cfg.BaseTimeout <= 0 {
		return 0
	}
	rate := remuxSecondsPerGB
	if isTranscode {
		rate = transcodeSecondsPerGB
	}
	extra := time.Duration(float64(sizeBytes) / float64(1<<30) * rate * float64(time.Second))
	return x.cfg.BaseTimeout + extra
}

// validateOutput checks the product of a successful subprocess run.
func (x *Executor) validateOutput(path string, inputSize int64) error {
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: output missing: %v", domain.ErrValidation, err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("%w: output is empty", domain.ErrValidation)
	}
	if inputSize > 0 && stat.Size() <= int64(float64(inputSize)*suspiciousOutputRatio) {
		x.logger.Warn("output suspiciously small",
			slog.String("path", path),
			slog.Int64("outputBytes", stat.Size()),
			slog.Int64("inputBytes", inputSize),
		)
	}
	return nil
}

// applyFileTimestamp realizes the plan's SET_FILE_MTIME action, if any.
// Mode "preserve" uses the pre-run mtime captured at entry.
func (x *Executor) applyFileTimestamp(plan domain.Plan, preMTime time.Time) error {
	for _, a := range plan.Actions {
		if a.Kind != domain.ActionSetFileMTime {
			continue
		}
		when := a.MTime
		if a.DesiredValue == "preserve" || when.IsZero() {
			when = preMTime
		}
		return os.Chtimes(plan.FilePath, time.Now(), when)
	}
	return nil
}

// finishBackup retains or unlinks the backup after success.
func (x *Executor) finishBackup(backup string) string {
	if x.cfg.KeepBackup {
		return backup
	}
	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		x.logger.Warn("backup cleanup failed",
			slog.String("backup", backup),
			slog.String("error", err.Error()),
		)
	}
	return ""
}

func remuxTarget(plan domain.Plan) string {
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionRemuxTo {
			return a.TargetContainer
		}
	}
	return ""
}

func muxerFor(container string) string {
	switch domain.NormalizeContainer(container) {
	case "mkv":
		return "matroska"
	case "mp4":
		return "mp4"
	default:
		return ""
	}
}
