package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/metrics"
	"github.com/randomparity/vpo/internal/probe"
	"github.com/randomparity/vpo/internal/store"
)

// videoExtensions are the container suffixes the scanner considers.
var videoExtensions = map[string]bool{
	".mkv": true, ".mka": true, ".mks": true,
	".mp4": true, ".m4v": true, ".mov": true,
	".avi": true, ".webm": true, ".ts": true, ".m2ts": true,
	".wmv": true, ".flv": true, ".mpg": true, ".mpeg": true,
}

const defaultConcurrency = 4

// Options controls one scan pass.
type Options struct {
	// Full re-probes every file regardless of stat comparison.
	Full bool
	// Prune removes store rows whose files no longer exist under the
	// scanned roots.
	Prune bool
	// VerifyHash re-hashes unchanged files and re-probes on mismatch.
	VerifyHash bool
	// DryRun reports what would change without writing to the store.
	DryRun bool
	// Concurrency bounds parallel probe invocations.
	Concurrency int
}

// Summary is the outcome of one scan pass.
type Summary struct {
	Seen      int `json:"seen"`
	Probed    int `json:"probed"`
	Unchanged int `json:"unchanged"`
	Pruned    int `json:"pruned"`
	Errors    int `json:"errors"`
}

// Scanner walks directory trees, detects changed files by stat (and
// optionally content hash), and feeds them through the probe into the
// library store.
type Scanner struct {
	DB     *store.DB
	Prober *probe.Prober
	Logger *slog.Logger
}

func New(db *store.DB, prober *probe.Prober, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{DB: db, Prober: prober, Logger: logger}
}

// Scan runs one incremental pass over the given roots.
func (s *Scanner) Scan(ctx context.Context, roots []string, opts Options) (Summary, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	paths, err := s.collect(roots)
	if err != nil {
		return Summary{}, err
	}

	var mu sync.Mutex
	summary := Summary{Seen: len(paths)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		g.Go(func() error {
			outcome, err := s.scanOne(gctx, path, opts)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Errors++
				s.Logger.Warn("scan failed", slog.String("path", path), slog.String("error", err.Error()))
				metrics.FilesScannedTotal.WithLabelValues("error").Inc()
			case outcome == outcomeProbed:
				summary.Probed++
				metrics.FilesScannedTotal.WithLabelValues("probed").Inc()
			default:
				summary.Unchanged++
				metrics.FilesScannedTotal.WithLabelValues("unchanged").Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if opts.Prune {
		pruned, err := s.prune(ctx, roots, paths, opts.DryRun)
		if err != nil {
			return summary, err
		}
		summary.Pruned = pruned
	}

	return summary, nil
}

// collect walks the roots and gathers candidate video files in sorted
// order. A root that is itself a video file is scanned directly.
func (s *Scanner) collect(roots []string) ([]string, error) {
	var paths []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if videoExtensions[strings.ToLower(filepath.Ext(root))] {
				paths = append(paths, root)
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.Logger.Warn("walk error", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if d.IsDir() {
				// Skip hidden directories and the data dir artifacts.
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return fs.SkipDir
				}
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.Contains(name, ".vpo_backup") {
				return nil
			}
			if videoExtensions[strings.ToLower(filepath.Ext(name))] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeProbed
)

func (s *Scanner) scanOne(ctx context.Context, path string, opts Options) (outcome, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return outcomeUnchanged, err
	}

	rec, _, err := s.DB.GetFileByPath(ctx, path)
	known := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return outcomeUnchanged, err
	}

	if known && !opts.Full {
		storedMod, _ := time.Parse(time.RFC3339Nano, rec.ModTime)
		// Stored mtimes carry microsecond precision; compare at that grain.
		if rec.SizeBytes == stat.Size() && storedMod.Equal(stat.ModTime().UTC().Truncate(time.Microsecond)) {
			if !opts.VerifyHash || rec.ContentHash == "" {
				return outcomeUnchanged, nil
			}
			hash, err := HashFile(path)
			if err != nil {
				return outcomeUnchanged, err
			}
			if hash == rec.ContentHash {
				return outcomeUnchanged, nil
			}
			s.Logger.Warn("content hash mismatch; re-probing", slog.String("path", path))
		}
	}

	if opts.DryRun {
		return outcomeProbed, nil
	}

	start := time.Now()
	info, warnings, err := s.Prober.Probe(ctx, path)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return outcomeUnchanged, err
	}
	for _, w := range warnings {
		s.Logger.Warn("probe warning", slog.String("path", path), slog.String("warning", w))
	}

	hash := ""
	if opts.VerifyHash {
		if hash, err = HashFile(path); err != nil {
			return outcomeUnchanged, err
		}
	}

	if _, err := s.DB.UpsertFile(ctx, info, hash); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeProbed, nil
}

// prune removes store rows under the scanned roots whose files vanished.
func (s *Scanner) prune(ctx context.Context, roots, seen []string, dryRun bool) (int, error) {
	seenSet := make(map[string]bool, len(seen))
	for _, p := range seen {
		seenSet[p] = true
	}

	stored, err := s.DB.ListFilePaths(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, path := range stored {
		if seenSet[path] {
			continue
		}
		underRoot := false
		for _, root := range roots {
			if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
				underRoot = true
				break
			}
		}
		if !underRoot {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		pruned++
		if dryRun {
			continue
		}
		if err := s.DB.DeleteFileByPath(ctx, path); err != nil {
			return pruned, err
		}
		s.Logger.Info("pruned missing file", slog.String("path", path))
	}
	return pruned, nil
}
