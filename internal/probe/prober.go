package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

const maxProbeTimeout = 60 * time.Second

// Prober runs ffprobe against files on disk and turns its JSON output
// into canonical FileInfo values.
type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

// Probe inspects one file. Warnings from parsing (duplicate stream
// indices) are returned alongside the result.
func (p *Prober) Probe(ctx context.Context, filePath string) (domain.FileInfo, []string, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.FileInfo{}, nil, errors.New("file path is required")
	}

	stat, err := os.Stat(path)
	if err != nil {
		return domain.FileInfo{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	info, warnings, parseErr := ParseOutput(stdout.Bytes(), path, stat.Size(), stat.ModTime())
	if parseErr != nil {
		if runErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return domain.FileInfo{}, nil, fmt.Errorf("ffprobe failed: %w", runErr)
			}
			return domain.FileInfo{}, nil, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
		}
		return domain.FileInfo{}, nil, parseErr
	}

	// ffprobe can exit nonzero for truncated files but still emit usable
	// stream metadata. Keep the metadata if we have any tracks.
	if runErr != nil && len(info.Tracks) == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.FileInfo{}, nil, fmt.Errorf("ffprobe failed: %w", runErr)
		}
		return domain.FileInfo{}, nil, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
	}

	return info, warnings, nil
}
