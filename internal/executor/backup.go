package executor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	tempPrefix   = ".vpo_temp_"
	backupInfix  = ".vpo_backup"
)

// BackupPath returns the backup sibling for a file:
// movie.mkv -> movie.vpo_backup.mkv.
func BackupPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, name+backupInfix+ext)
}

// TempPath returns the sentinel-prefixed temp sibling for a destination,
// optionally redirected into an explicit temp dir. The prefix makes
// orphans identifiable by maintenance sweeps.
func TempPath(dest, tempDir string) string {
	dir := filepath.Dir(dest)
	if tempDir != "" {
		dir = tempDir
	}
	return filepath.Join(dir, tempPrefix+filepath.Base(dest))
}

// createBackup copies the source aside before mutation, hard-linking when
// source and backup share a filesystem and falling back to a full copy.
func (x *Executor) createBackup(path string) (string, error) {
	backup := BackupPath(path)
	_ = os.Remove(backup)

	if err := os.Link(path, backup); err == nil {
		return backup, nil
	}

	if err := copyFile(path, backup); err != nil {
		return "", fmt.Errorf("create backup for %s: %w", path, err)
	}
	return backup, nil
}

// safeRestoreFromBackup puts the backup back into place. It never
// panics or returns: restore failures on an already-failing path are
// logged, not raised, so the original error wins.
func (x *Executor) safeRestoreFromBackup(backup, original string) {
	if backup == "" {
		return
	}
	if _, err := os.Stat(backup); err != nil {
		x.logger.Error("backup missing during restore",
			slog.String("backup", backup),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.Rename(backup, original); err != nil {
		// Cross-device or permission trouble: try copy-then-unlink.
		if copyErr := copyFile(backup, original); copyErr != nil {
			x.logger.Error("backup restore failed",
				slog.String("backup", backup),
				slog.String("original", original),
				slog.String("error", copyErr.Error()),
			)
			return
		}
		_ = os.Remove(backup)
	}
	x.logger.Info("restored from backup", slog.String("path", original))
}

// replaceAtomic renames temp into place, falling back to copy+fsync+unlink
// when the rename crosses devices.
func replaceAtomic(temp, dest string) error {
	if err := os.Rename(temp, dest); err == nil {
		return nil
	}
	if err := copyFileSync(temp, dest); err != nil {
		return err
	}
	return os.Remove(temp)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func copyFileSync(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
