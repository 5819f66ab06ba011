package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/tools"
)

// executeInPlace applies a metadata-only plan to a Matroska file with
// mkvpropedit: no remux, sub-second runtime.
func (x *Executor) executeInPlace(ctx context.Context, plan domain.Plan) (Result, error) {
	propedit, err := x.registry.Require(tools.MkvPropEdit)
	if err != nil {
		return Result{}, err
	}

	argv, err := buildPropeditArgs(propedit.Path, plan)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrPreflight, err)
	}

	backup, err := x.createBackup(plan.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrPreflight, err)
	}

	x.logger.Info("applying metadata changes in place",
		slog.String("path", plan.FilePath),
		slog.Int("actions", len(plan.Actions)),
	)

	timeout := x.cfg.BaseTimeout
	if timeout <= 0 {
		timeout = 0
	} else if timeout > 5*time.Minute {
		timeout = 5 * time.Minute
	}

	run, err := x.runSupervised(ctx, argv, timeout, nil)
	if err != nil {
		x.safeRestoreFromBackup(backup, plan.FilePath)
		return Result{}, err
	}
	if run.ExitCode != 0 {
		x.safeRestoreFromBackup(backup, plan.FilePath)
		return Result{}, fmt.Errorf("%w: mkvpropedit exited %d: %s",
			domain.ErrSubprocess, run.ExitCode, run.StderrTail())
	}

	return Result{
		Success:    true,
		OutputPath: plan.FilePath,
		BackupPath: x.finishBackup(backup),
		Message:    fmt.Sprintf("applied %d metadata change(s)", len(plan.Actions)),
	}, nil
}

// buildPropeditArgs renders a metadata-only plan as one mkvpropedit
// invocation. Track selectors are 1-based; container tags use the info
// scope.
func buildPropeditArgs(binary string, plan domain.Plan) ([]string, error) {
	argv := []string{binary, plan.FilePath}

	for _, action := range plan.Actions {
		if action.Kind == domain.ActionSetFileMTime {
			continue
		}
		if action.Kind == domain.ActionSetContainerMetadata {
			field := action.CurrentValue
			if action.DesiredValue == "" {
				argv = append(argv, "--edit", "info", "--delete", field)
			} else {
				argv = append(argv, "--edit", "info", "--set", fmt.Sprintf("%s=%s", field, action.DesiredValue))
			}
			continue
		}

		selector := fmt.Sprintf("track:%d", action.TrackIndex+1)
		switch action.Kind {
		case domain.ActionSetDefault:
			argv = append(argv, "--edit", selector, "--set", "flag-default=1")
		case domain.ActionClearDefault:
			argv = append(argv, "--edit", selector, "--set", "flag-default=0")
		case domain.ActionSetForced:
			argv = append(argv, "--edit", selector, "--set", "flag-forced=1")
		case domain.ActionClearForced:
			argv = append(argv, "--edit", selector, "--set", "flag-forced=0")
		case domain.ActionSetTitle:
			argv = append(argv, "--edit", selector, "--set", fmt.Sprintf("name=%s", action.DesiredValue))
		case domain.ActionSetLanguage:
			argv = append(argv, "--edit", selector, "--set", fmt.Sprintf("language=%s", action.DesiredValue))
		default:
			return nil, fmt.Errorf("action %s cannot be applied in place", action.Kind)
		}
	}

	return argv, nil
}
