package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

const detectTimeout = 10 * time.Second

// Tool names the registry knows about.
const (
	FFmpeg      = "ffmpeg"
	FFprobe     = "ffprobe"
	MkvMerge    = "mkvmerge"
	MkvPropEdit = "mkvpropedit"
)

// Version is a parsed major.minor.patch tuple.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	return v.Patch >= other.Patch
}

// Info describes one detected external tool.
type Info struct {
	Name    string
	Path    string
	Version Version
	Raw     string

	// ffmpeg capability sets, empty for other tools.
	Encoders map[string]bool
	Muxers   map[string]bool
	Filters  map[string]bool
}

// HasEncoder reports whether the ffmpeg build lists the named encoder.
func (i *Info) HasEncoder(name string) bool { return i.Encoders[name] }

// HasMuxer reports whether the ffmpeg build lists the named muxer.
func (i *Info) HasMuxer(name string) bool { return i.Muxers[name] }

// HasFilter reports whether the ffmpeg build lists the named filter.
func (i *Info) HasFilter(name string) bool { return i.Filters[name] }

// SupportsFPSMode reports whether the build accepts -fps_mode (5.1+);
// older builds need the legacy -vsync flag.
func (i *Info) SupportsFPSMode() bool { return i.Version.AtLeast(Version{Major: 5, Minor: 1}) }

// SupportsStatsPeriod reports whether -stats_period is accepted (4.4+);
// older builds get bare -stats.
func (i *Info) SupportsStatsPeriod() bool { return i.Version.AtLeast(Version{Major: 4, Minor: 4}) }

// RequiresExplicitPCM reports whether WAV extraction needs an explicit
// -acodec pcm_s16le (pre-4.0 builds).
func (i *Info) RequiresExplicitPCM() bool { return !i.Version.AtLeast(Version{Major: 4}) }

// Paths carries configured tool locations; empty values fall back to PATH
// lookup under the standard names.
type Paths struct {
	FFmpeg      string
	FFprobe     string
	MkvMerge    string
	MkvPropEdit string
}

// Registry detects external media tools once and caches the results.
type Registry struct {
	mu     sync.RWMutex
	paths  Paths
	logger *slog.Logger
	tools  map[string]*Info
}

func NewRegistry(paths Paths, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		paths:  paths,
		logger: logger,
		tools:  make(map[string]*Info),
	}
}

// Detect probes all known tools. Missing tools are logged and left out of
// the registry; callers discover absence via Require.
func (r *Registry) Detect(ctx context.Context) {
	for name, configured := range map[string]string{
		FFmpeg:      r.paths.FFmpeg,
		FFprobe:     r.paths.FFprobe,
		MkvMerge:    r.paths.MkvMerge,
		MkvPropEdit: r.paths.MkvPropEdit,
	} {
		info, err := r.detectOne(ctx, name, configured)
		if err != nil {
			r.logger.Warn("tool not available",
				slog.String("tool", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.mu.Lock()
		r.tools[name] = info
		r.mu.Unlock()
		r.logger.Info("tool detected",
			slog.String("tool", name),
			slog.String("path", info.Path),
			slog.String("version", info.Version.String()),
		)
	}
}

// Lookup returns the cached info for a tool, if detected.
func (r *Registry) Lookup(name string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tools[name]
	return info, ok
}

// Require returns the cached info or ErrToolMissing.
func (r *Registry) Require(name string) (*Info, error) {
	if info, ok := r.Lookup(name); ok {
		return info, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrToolMissing, name)
}

func (r *Registry) detectOne(ctx context.Context, name, configured string) (*Info, error) {
	binary := strings.TrimSpace(configured)
	if binary == "" {
		binary = name
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", binary, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, resolved, versionFlag(name)).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s --version: %w", resolved, err)
	}

	info := &Info{
		Name:    name,
		Path:    resolved,
		Version: parseVersion(string(out)),
		Raw:     firstLine(string(out)),
	}

	if name == FFmpeg {
		info.Encoders = r.listCapability(ctx, resolved, "-encoders")
		info.Muxers = r.listCapability(ctx, resolved, "-muxers")
		info.Filters = r.listCapability(ctx, resolved, "-filters")
	}

	return info, nil
}

func versionFlag(name string) string {
	switch name {
	case MkvMerge, MkvPropEdit:
		return "--version"
	default:
		return "-version"
	}
}

// listCapability parses one ffmpeg capability listing (-encoders, -muxers,
// -filters) into a name set. Listing lines look like
// " V....D libx264   H.264 / AVC ..." with the name in the second column.
func (r *Registry) listCapability(ctx context.Context, binary, flag string) map[string]bool {
	runCtx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, binary, "-hide_banner", flag).Output()
	if err != nil {
		r.logger.Warn("capability listing failed",
			slog.String("flag", flag),
			slog.String("error", err.Error()),
		)
		return nil
	}

	caps := make(map[string]bool)
	inBody := false
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "----") || strings.Contains(line, "====") {
			inBody = true
			continue
		}
		if !inBody {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		caps[fields[1]] = true
	}
	return caps
}

// Matches "ffmpeg version 6.1.1" and "mkvpropedit v79.0 ('…')".
var versionRe = regexp.MustCompile(`(?:version\s+v?|\bv)(\d+)\.(\d+)(?:\.(\d+))?`)

func parseVersion(output string) Version {
	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return Version{}
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return Version{Major: major, Minor: minor, Patch: patch}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
