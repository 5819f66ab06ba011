package store

import (
	"context"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

// InsertProcessingStats appends one transcode stats row.
func (d *DB) InsertProcessingStats(ctx context.Context, stats domain.ProcessingStats) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO processing_stats (job_id, file_path, input_bytes, output_bytes, duration_seconds,
			encoder, encoder_type, fallback_occurred, mean_fps, peak_fps, mean_bitrate_kbps, total_frames, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.JobID, stats.FilePath, stats.InputBytes, stats.OutputBytes, stats.DurationSeconds,
		stats.Encoder, string(stats.EncoderType), stats.FallbackOccurred,
		stats.MeanFPS, stats.PeakFPS, stats.MeanBitrateKbps, stats.TotalFrames, NowUTC(),
	)
	return err
}

// StatsSummary aggregates the whole processing_stats table.
type StatsSummary struct {
	Transcodes       int64   `db:"transcodes" json:"transcodes"`
	InputBytes       int64   `db:"input_bytes" json:"inputBytes"`
	OutputBytes      int64   `db:"output_bytes" json:"outputBytes"`
	SavedBytes       int64   `json:"savedBytes"`
	TotalSeconds     float64 `db:"total_seconds" json:"totalSeconds"`
	HardwareRuns     int64   `db:"hardware_runs" json:"hardwareRuns"`
	FallbackRuns     int64   `db:"fallback_runs" json:"fallbackRuns"`
	MeanFPS          float64 `db:"mean_fps" json:"meanFps"`
}

// GetStatsSummary computes the lifetime transcode summary.
func (d *DB) GetStatsSummary(ctx context.Context) (StatsSummary, error) {
	var s StatsSummary
	err := d.read.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS transcodes,
			COALESCE(SUM(input_bytes), 0) AS input_bytes,
			COALESCE(SUM(output_bytes), 0) AS output_bytes,
			COALESCE(SUM(duration_seconds), 0) AS total_seconds,
			COALESCE(SUM(CASE WHEN encoder_type = 'hardware' THEN 1 ELSE 0 END), 0) AS hardware_runs,
			COALESCE(SUM(CASE WHEN fallback_occurred THEN 1 ELSE 0 END), 0) AS fallback_runs,
			COALESCE(AVG(mean_fps), 0) AS mean_fps
		FROM processing_stats`)
	if err != nil {
		return StatsSummary{}, err
	}
	s.SavedBytes = s.InputBytes - s.OutputBytes
	return s, nil
}

// ListRecentStats returns the most recent rows.
func (d *DB) ListRecentStats(ctx context.Context, limit int) ([]domain.ProcessingStats, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []domain.ProcessingStats
	err := d.read.SelectContext(ctx, &rows,
		`SELECT * FROM processing_stats ORDER BY id DESC LIMIT ?`, limit)
	return rows, err
}

// TrendBucket is one day of aggregated transcode activity.
type TrendBucket struct {
	Day         string  `db:"day" json:"day"`
	Transcodes  int64   `db:"transcodes" json:"transcodes"`
	InputBytes  int64   `db:"input_bytes" json:"inputBytes"`
	OutputBytes int64   `db:"output_bytes" json:"outputBytes"`
	MeanFPS     float64 `db:"mean_fps" json:"meanFps"`
}

// GetStatsTrends buckets recent activity by day.
func (d *DB) GetStatsTrends(ctx context.Context, days int) ([]TrendBucket, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	cutoff := FormatTime(time.Now().AddDate(0, 0, -days))
	var buckets []TrendBucket
	err := d.read.SelectContext(ctx, &buckets, `
		SELECT
			substr(created_at, 1, 10) AS day,
			COUNT(*) AS transcodes,
			COALESCE(SUM(input_bytes), 0) AS input_bytes,
			COALESCE(SUM(output_bytes), 0) AS output_bytes,
			COALESCE(AVG(mean_fps), 0) AS mean_fps
		FROM processing_stats
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day`, cutoff)
	return buckets, err
}
