package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

// FileRecord is one row of the files table.
type FileRecord struct {
	ID          int64   `db:"id" json:"id"`
	Path        string  `db:"path" json:"path"`
	Container   string  `db:"container" json:"container"`
	SizeBytes   int64   `db:"size_bytes" json:"sizeBytes"`
	ModTime     string  `db:"mod_time" json:"modTime"`
	Duration    float64 `db:"duration" json:"duration"`
	ContentHash string  `db:"content_hash" json:"contentHash,omitempty"`
	TagsJSON    string  `db:"tags_json" json:"-"`
	ProbedAt    string  `db:"probed_at" json:"probedAt"`
	CreatedAt   string  `db:"created_at" json:"createdAt"`
	UpdatedAt   string  `db:"updated_at" json:"updatedAt"`
}

type trackRow struct {
	FileID          int64   `db:"file_id"`
	TrackIndex      int     `db:"track_index"`
	Kind            string  `db:"kind"`
	Codec           string  `db:"codec"`
	Language        string  `db:"language"`
	Title           string  `db:"title"`
	IsDefault       bool    `db:"is_default"`
	IsForced        bool    `db:"is_forced"`
	Width           int     `db:"width"`
	Height          int     `db:"height"`
	FrameRate       string  `db:"frame_rate"`
	Channels        int     `db:"channels"`
	ChannelLayout   string  `db:"channel_layout"`
	DurationSeconds float64 `db:"duration_seconds"`
	ColorTransfer   string  `db:"color_transfer"`
	ColorPrimaries  string  `db:"color_primaries"`
	ColorSpace      string  `db:"color_space"`
	ColorRange      string  `db:"color_range"`
}

// UpsertFile writes a probed FileInfo and its tracks, replacing any prior
// track rows. Returns the file id.
func (d *DB) UpsertFile(ctx context.Context, info domain.FileInfo, contentHash string) (int64, error) {
	tags, err := json.Marshal(info.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	now := NowUTC()

	tx, err := d.write.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, container, size_bytes, mod_time, duration, content_hash, tags_json, probed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			container = excluded.container,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			duration = excluded.duration,
			content_hash = excluded.content_hash,
			tags_json = excluded.tags_json,
			probed_at = excluded.probed_at,
			updated_at = excluded.updated_at`,
		info.Path, info.Container, info.SizeBytes, FormatTime(info.ModTime), info.Duration,
		contentHash, string(tags), now, now, now,
	)
	if err != nil {
		return 0, err
	}

	var fileID int64
	if err := tx.GetContext(ctx, &fileID, `SELECT id FROM files WHERE path = ?`, info.Path); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE file_id = ?`, fileID); err != nil {
		return 0, err
	}
	for _, t := range info.Tracks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracks (file_id, track_index, kind, codec, language, title, is_default, is_forced,
				width, height, frame_rate, channels, channel_layout, duration_seconds,
				color_transfer, color_primaries, color_space, color_range)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, t.Index, string(t.Kind), t.Codec, t.Language, t.Title, t.Default, t.Forced,
			t.Width, t.Height, t.FrameRate, t.Channels, t.ChannelLayout, t.DurationSeconds,
			t.Color.Transfer, t.Color.Primaries, t.Color.Space, t.Color.Range,
		)
		if err != nil {
			return 0, err
		}
	}

	return fileID, tx.Commit()
}

// GetFileByPath loads a file row with its tracks rehydrated as FileInfo.
func (d *DB) GetFileByPath(ctx context.Context, path string) (FileRecord, domain.FileInfo, error) {
	var rec FileRecord
	if err := d.read.GetContext(ctx, &rec, `SELECT * FROM files WHERE path = ?`, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, domain.FileInfo{}, domain.ErrNotFound
		}
		return FileRecord{}, domain.FileInfo{}, err
	}
	info, err := d.hydrateFileInfo(ctx, rec)
	return rec, info, err
}

// GetFileByID loads a file row by id.
func (d *DB) GetFileByID(ctx context.Context, id int64) (FileRecord, domain.FileInfo, error) {
	var rec FileRecord
	if err := d.read.GetContext(ctx, &rec, `SELECT * FROM files WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, domain.FileInfo{}, domain.ErrNotFound
		}
		return FileRecord{}, domain.FileInfo{}, err
	}
	info, err := d.hydrateFileInfo(ctx, rec)
	return rec, info, err
}

func (d *DB) hydrateFileInfo(ctx context.Context, rec FileRecord) (domain.FileInfo, error) {
	var rows []trackRow
	if err := d.read.SelectContext(ctx, &rows,
		`SELECT * FROM tracks WHERE file_id = ? ORDER BY track_index`, rec.ID); err != nil {
		return domain.FileInfo{}, err
	}

	tags := map[string]string{}
	if rec.TagsJSON != "" {
		_ = json.Unmarshal([]byte(rec.TagsJSON), &tags)
	}
	modTime, _ := time.Parse(time.RFC3339Nano, rec.ModTime)

	info := domain.FileInfo{
		Path:      rec.Path,
		Container: rec.Container,
		SizeBytes: rec.SizeBytes,
		ModTime:   modTime,
		Duration:  rec.Duration,
		Tags:      tags,
	}
	for _, r := range rows {
		info.Tracks = append(info.Tracks, domain.Track{
			Index:           r.TrackIndex,
			Kind:            domain.TrackKind(r.Kind),
			Codec:           r.Codec,
			Language:        r.Language,
			Title:           r.Title,
			Default:         r.IsDefault,
			Forced:          r.IsForced,
			Width:           r.Width,
			Height:          r.Height,
			FrameRate:       r.FrameRate,
			Channels:        r.Channels,
			ChannelLayout:   r.ChannelLayout,
			DurationSeconds: r.DurationSeconds,
			Color: domain.ColorInfo{
				Transfer:  r.ColorTransfer,
				Primaries: r.ColorPrimaries,
				Space:     r.ColorSpace,
				Range:     r.ColorRange,
			},
		})
	}
	return info, nil
}

// ListFilePaths returns every known path, for prune comparisons.
func (d *DB) ListFilePaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := d.read.SelectContext(ctx, &paths, `SELECT path FROM files ORDER BY path`)
	return paths, err
}

// DeleteFileByPath removes a file row (tracks cascade).
func (d *DB) DeleteFileByPath(ctx context.Context, path string) error {
	_, err := d.write.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return err
}

// RenameFile updates the stored path after a container conversion changed
// the extension.
func (d *DB) RenameFile(ctx context.Context, oldPath, newPath string) error {
	_, err := d.write.ExecContext(ctx,
		`UPDATE files SET path = ?, updated_at = ? WHERE path = ?`, newPath, NowUTC(), oldPath)
	return err
}
