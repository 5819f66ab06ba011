package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "library.db"), time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleInfo(path string) domain.FileInfo {
	return domain.FileInfo{
		Path:      path,
		Container: "mkv",
		SizeBytes: 1 << 30,
		ModTime:   time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:  5400,
		Tags:      map[string]string{"title": "Example"},
		Tracks: []domain.Track{
			{Index: 0, Kind: domain.TrackVideo, Codec: "h264", Language: "und", Width: 1920, Height: 1080},
			{Index: 1, Kind: domain.TrackAudio, Codec: "ac3", Language: "eng", Channels: 6, Default: true},
		},
	}
}

func TestFileRoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	info := sampleInfo("/library/movie.mkv")
	id, err := db.UpsertFile(ctx, info, "abc123")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, loaded, err := db.GetFileByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ContentHash != "abc123" {
		t.Errorf("hash = %q", rec.ContentHash)
	}
	if loaded.Container != "mkv" || len(loaded.Tracks) != 2 {
		t.Errorf("hydrated info wrong: %+v", loaded)
	}
	if loaded.Tracks[1].Language != "eng" || !loaded.Tracks[1].Default {
		t.Errorf("track round trip lost fields: %+v", loaded.Tracks[1])
	}
	if loaded.Tags["title"] != "Example" {
		t.Errorf("tags lost: %v", loaded.Tags)
	}

	// Upserting again with fewer tracks replaces the track set.
	info.Tracks = info.Tracks[:1]
	id2, err := db.UpsertFile(ctx, info, "abc124")
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Errorf("upsert created a new row: %d vs %d", id2, id)
	}
	_, reloaded, _ := db.GetFileByID(ctx, id)
	if len(reloaded.Tracks) != 1 {
		t.Errorf("tracks not replaced: %d", len(reloaded.Tracks))
	}
}

func TestGetFileNotFound(t *testing.T) {
	db := openDB(t)
	_, _, err := db.GetFileByPath(context.Background(), "/missing.mkv")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlanLifecycle(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	job, err := db.InsertJob(ctx, domain.JobApply, "/library/movie.mkv", "default", 100)
	if err != nil {
		t.Fatal(err)
	}

	plan := domain.Plan{
		FilePath:        "/library/movie.mkv",
		SourceContainer: "mkv",
		Actions: []domain.PlannedAction{
			{Kind: domain.ActionSetForced, TrackIndex: 2, CurrentValue: "false", DesiredValue: "true"},
		},
	}
	planID, err := db.InsertPlan(ctx, job.ID, plan)
	if err != nil {
		t.Fatal(err)
	}

	rec, rehydrated, err := db.GetPlan(ctx, planID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.PlanPending {
		t.Errorf("status = %s", rec.Status)
	}
	if len(rehydrated.Actions) != 1 || rehydrated.Actions[0].Kind != domain.ActionSetForced {
		t.Errorf("plan payload lost actions: %+v", rehydrated.Actions)
	}

	if err := db.TransitionPlan(ctx, planID, domain.PlanPending, domain.PlanApproved); err != nil {
		t.Fatal(err)
	}
	if err := db.TransitionPlan(ctx, planID, domain.PlanApproved, domain.PlanExecuted); err != nil {
		t.Fatal(err)
	}

	// Terminal states are immutable.
	if err := db.TransitionPlan(ctx, planID, domain.PlanExecuted, domain.PlanFailed); err == nil {
		t.Error("transition out of executed should fail")
	}
	// Illegal edges are rejected even from live states.
	if err := db.TransitionPlan(ctx, planID, domain.PlanPending, domain.PlanExecuted); err == nil {
		t.Error("pending -> executed should be rejected")
	}
}

func TestListJobsFilters(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	_, _ = db.InsertJob(ctx, domain.JobApply, "/library/alpha.mkv", "default", 100)
	_, _ = db.InsertJob(ctx, domain.JobScan, "/library", "", 50)

	apply, err := db.ListJobs(ctx, JobFilter{Kind: "apply"})
	if err != nil {
		t.Fatal(err)
	}
	if len(apply) != 1 || apply[0].Kind != domain.JobApply {
		t.Errorf("kind filter: %+v", apply)
	}

	search, err := db.ListJobs(ctx, JobFilter{Search: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(search) != 1 {
		t.Errorf("search filter: %+v", search)
	}

	sorted, err := db.ListJobs(ctx, JobFilter{SortBy: "priority", SortOrder: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sorted) != 2 || sorted[0].Priority != 50 {
		t.Errorf("sort order: %+v", sorted)
	}
}

func TestProcessingStatsSummary(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	rows := []domain.ProcessingStats{
		{FilePath: "/a.mkv", InputBytes: 1000, OutputBytes: 500, DurationSeconds: 10,
			Encoder: "libx265", EncoderType: domain.EncoderSoftware, FallbackOccurred: true, MeanFPS: 60},
		{FilePath: "/b.mkv", InputBytes: 2000, OutputBytes: 1000, DurationSeconds: 20,
			Encoder: "hevc_nvenc", EncoderType: domain.EncoderHardware, MeanFPS: 120},
	}
	for _, row := range rows {
		if err := db.InsertProcessingStats(ctx, row); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := db.GetStatsSummary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Transcodes != 2 || summary.SavedBytes != 1500 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.HardwareRuns != 1 || summary.FallbackRuns != 1 {
		t.Errorf("summary encoder counts = %+v", summary)
	}

	recent, err := db.ListRecentStats(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].FilePath != "/b.mkv" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestAnalysesRoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	fileID, err := db.UpsertFile(ctx, sampleInfo("/library/movie.mkv"), "")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.SaveLanguageAnalysis(ctx, domain.LanguageAnalysis{
		FileID: fileID, TrackIndex: 1, Language: "jpn", Confidence: 0.92,
		IsOriginal: true, Classification: "speech",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceLanguageSegments(ctx, fileID, 1, []domain.LanguageSegment{
		{TrackIndex: 1, Language: "jpn", StartSec: 0, EndSec: 5000, Fraction: 0.9},
		{TrackIndex: 1, Language: "eng", StartSec: 5000, EndSec: 5400, Fraction: 0.1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.SavePluginMetadata(ctx, fileID, "radarr", map[string]any{
		"original_language": "jpn",
		"release_date":      "2024-07-01",
	}); err != nil {
		t.Fatal(err)
	}

	set, err := db.LoadAnalyses(ctx, fileID)
	if err != nil {
		t.Fatal(err)
	}
	if la := set.Language[1]; la.Language != "jpn" || !la.IsOriginal {
		t.Errorf("language analysis = %+v", la)
	}
	if len(set.Segments[1]) != 2 {
		t.Errorf("segments = %+v", set.Segments)
	}
	if v, ok := set.PluginField("radarr", "original_language"); !ok || v != "jpn" {
		t.Errorf("plugin field = %v, %v", v, ok)
	}
	if lang, ok := set.OriginalLanguage(); !ok || lang != "jpn" {
		t.Errorf("original language = %q, %v", lang, ok)
	}
}

func TestPluginRegistry(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	if err := db.RegisterPlugin(ctx, "radarr", "1.0"); err != nil {
		t.Fatal(err)
	}

	// Enabling before acknowledgement is refused.
	if err := db.EnablePlugin(ctx, "radarr"); err == nil {
		t.Error("enable should require acknowledgement")
	}

	if err := db.AcknowledgePlugin(ctx, "radarr"); err != nil {
		t.Fatal(err)
	}
	if err := db.EnablePlugin(ctx, "radarr"); err != nil {
		t.Fatal(err)
	}

	plugins, err := db.ListPlugins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(plugins) != 1 || !plugins[0].Enabled || !plugins[0].Acknowledged {
		t.Errorf("plugins = %+v", plugins)
	}

	if err := db.DisablePlugin(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
