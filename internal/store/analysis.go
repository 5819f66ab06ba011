package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randomparity/vpo/internal/domain"
)

type pluginMetadataRow struct {
	Plugin       string `db:"plugin"`
	MetadataJSON string `db:"metadata_json"`
}

// LoadAnalyses assembles the evaluator's side-channel analysis set for a
// file: language detection rows, segment rows, and plugin metadata blobs.
func (d *DB) LoadAnalyses(ctx context.Context, fileID int64) (domain.AnalysisSet, error) {
	set := domain.AnalysisSet{
		Language: make(map[int]domain.LanguageAnalysis),
		Segments: make(map[int][]domain.LanguageSegment),
		Plugins:  make(map[string]map[string]any),
	}

	var language []domain.LanguageAnalysis
	if err := d.read.SelectContext(ctx, &language,
		`SELECT * FROM language_analysis_results WHERE file_id = ? ORDER BY track_index`, fileID); err != nil {
		return domain.AnalysisSet{}, err
	}
	for _, la := range language {
		set.Language[la.TrackIndex] = la
	}

	var segments []domain.LanguageSegment
	if err := d.read.SelectContext(ctx, &segments,
		`SELECT * FROM language_segments WHERE file_id = ? ORDER BY track_index, start_sec`, fileID); err != nil {
		return domain.AnalysisSet{}, err
	}
	for _, seg := range segments {
		set.Segments[seg.TrackIndex] = append(set.Segments[seg.TrackIndex], seg)
	}

	var blobs []pluginMetadataRow
	if err := d.read.SelectContext(ctx, &blobs,
		`SELECT plugin, metadata_json FROM plugin_metadata WHERE file_id = ? ORDER BY plugin`, fileID); err != nil {
		return domain.AnalysisSet{}, err
	}
	for _, blob := range blobs {
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(blob.MetadataJSON), &fields); err != nil {
			return domain.AnalysisSet{}, fmt.Errorf("%w: plugin %s metadata: %v", domain.ErrIntegrity, blob.Plugin, err)
		}
		set.Plugins[blob.Plugin] = fields
	}

	return set, nil
}

// SaveLanguageAnalysis upserts one track's language analysis row.
func (d *DB) SaveLanguageAnalysis(ctx context.Context, la domain.LanguageAnalysis) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO language_analysis_results
			(file_id, track_index, language, confidence, is_original, is_commentary, classification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, track_index) DO UPDATE SET
			language = excluded.language,
			confidence = excluded.confidence,
			is_original = excluded.is_original,
			is_commentary = excluded.is_commentary,
			classification = excluded.classification,
			created_at = excluded.created_at`,
		la.FileID, la.TrackIndex, la.Language, la.Confidence, la.IsOriginal, la.IsCommentary,
		la.Classification, NowUTC(),
	)
	return err
}

// ReplaceLanguageSegments rewrites a track's detected language spans.
func (d *DB) ReplaceLanguageSegments(ctx context.Context, fileID int64, trackIndex int, segments []domain.LanguageSegment) error {
	tx, err := d.write.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM language_segments WHERE file_id = ? AND track_index = ?`, fileID, trackIndex); err != nil {
		return err
	}
	for _, seg := range segments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO language_segments (file_id, track_index, language, start_sec, end_sec, fraction)
			VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, trackIndex, seg.Language, seg.StartSec, seg.EndSec, seg.Fraction); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SavePluginMetadata stores one plugin's metadata blob for a file.
func (d *DB) SavePluginMetadata(ctx context.Context, fileID int64, plugin string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal plugin metadata: %w", err)
	}
	_, err = d.write.ExecContext(ctx, `
		INSERT INTO plugin_metadata (file_id, plugin, metadata_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, plugin) DO UPDATE SET
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at`,
		fileID, plugin, string(payload), NowUTC(),
	)
	return err
}
