package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// skipPolicy wraps one skip_when block around a phase whose only effect
// is a warning, so a skipped phase is observable as zero warnings plus a
// Skipped record.
func skipPolicy(t *testing.T, skipWhen string) *policy.Policy {
	t.Helper()
	return loadPolicy(t, `
schema_version: 1
name: skip
phases:
  - name: guarded
    skip_when:
`+skipWhen+`
    conditional_rules:
      rules:
        - name: marker
          when: exists(video)
          then:
            - warn: "phase ran"
`)
}

func assertSkipped(t *testing.T, file domain.FileInfo, skipWhen, condition string) {
	t.Helper()
	plan, err := Evaluate(skipPolicy(t, skipWhen), file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Warnings, "phase should have been skipped")
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, condition, plan.Skipped[0].Condition)
	assert.Equal(t, "guarded", plan.Skipped[0].Phase)
}

func assertRan(t *testing.T, file domain.FileInfo, skipWhen string) {
	t.Helper()
	plan, err := Evaluate(skipPolicy(t, skipWhen), file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Equal(t, []string{"phase ran"}, plan.Warnings, "phase should have run")
	assert.Empty(t, plan.Skipped)
}

func TestSkipWhenAudioCodecExists(t *testing.T) {
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(tr *domain.Track) { tr.Codec = "aac" }),
	)
	assertSkipped(t, file, "      audio_codec_exists: aac", "audio_codec_exists")
	assertSkipped(t, file, "      audio_codec_exists: AAC", "audio_codec_exists")
	assertRan(t, file, "      audio_codec_exists: opus")
}

// audio_codec_exists is an exact comparison: an alias-group name must not
// match a variant spelling the way the transcode planner's matching does.
func TestSkipWhenAudioCodecExistsIgnoresAliases(t *testing.T) {
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(tr *domain.Track) { tr.Codec = "dts-hd ma" }),
	)
	assertRan(t, file, "      audio_codec_exists: dts")
	assertSkipped(t, file, "      audio_codec_exists: dts-hd", "audio_codec_exists")
}

func TestSkipWhenSubtitleLanguageExists(t *testing.T) {
	file := mkvFile(
		video(0, "h264", 1080),
		subtitle(1, "ger"),
	)
	assertSkipped(t, file, "      subtitle_language_exists: ger", "subtitle_language_exists")
	assertSkipped(t, file, "      subtitle_language_exists: GER", "subtitle_language_exists")
	assertRan(t, file, "      subtitle_language_exists: eng")
}

func TestSkipWhenContainerNormalizesAliases(t *testing.T) {
	file := mkvFile(video(0, "h264", 1080))
	file.Container = "matroska"

	assertSkipped(t, file, "      container: [mkv]", "container")
	assertSkipped(t, file, "      container: [matroska]", "container")
	assertRan(t, file, "      container: [mp4, avi]")
}

func TestSkipWhenResolutionExactMatch(t *testing.T) {
	file := mkvFile(video(0, "h264", 1080))
	assertSkipped(t, file, "      resolution: 1080p", "resolution")
	assertRan(t, file, "      resolution: 720p")

	// 4k is an alias of 2160p, both directions.
	uhd := mkvFile(video(0, "hevc", 2160))
	assertSkipped(t, uhd, "      resolution: 4k", "resolution")
	assertSkipped(t, uhd, "      resolution: 2160p", "resolution")
}

func TestSkipWhenResolutionUnder(t *testing.T) {
	sd := mkvFile(video(0, "h264", 480))
	assertSkipped(t, sd, "      resolution_under: 720p", "resolution_under")

	hd := mkvFile(video(0, "h264", 1080))
	assertRan(t, hd, "      resolution_under: 720p")
	// Equal height is not under the threshold.
	assertRan(t, hd, "      resolution_under: 1080p")
}

func TestSkipWhenFileSize(t *testing.T) {
	small := mkvFile(video(0, "h264", 1080))
	small.SizeBytes = 100_000_000

	assertSkipped(t, small, "      file_size_under: 200M", "file_size_under")
	assertRan(t, small, "      file_size_under: 50M")

	large := mkvFile(video(0, "h264", 1080))
	large.SizeBytes = 3_000_000_000
	assertSkipped(t, large, "      file_size_over: 1.5GB", "file_size_over")
	assertRan(t, large, "      file_size_over: 4GB")

	// Exactly at the threshold is neither under nor over.
	exact := mkvFile(video(0, "h264", 1080))
	exact.SizeBytes = 200_000_000
	assertRan(t, exact, "      file_size_under: 200M")
	assertRan(t, exact, "      file_size_over: 200M")
}

func TestSkipWhenDuration(t *testing.T) {
	short := mkvFile(video(0, "h264", 1080))
	short.Duration = 1200 // 20 minutes

	assertSkipped(t, short, "      duration_under: 30m", "duration_under")
	assertRan(t, short, "      duration_under: 10m")

	long := mkvFile(video(0, "h264", 1080))
	long.Duration = 7200
	assertSkipped(t, long, "      duration_over: 90m", "duration_over")
	assertRan(t, long, "      duration_over: 3h")
}

// Duration falls back to the video track when the container reports none.
func TestSkipWhenDurationFromVideoTrack(t *testing.T) {
	file := mkvFile(video(0, "h264", 1080))
	file.Tracks[0].DurationSeconds = 600
	assertSkipped(t, file, "      duration_under: 30m", "duration_under")
}

// Predicates whose inputs are missing cannot match: no video track means
// no resolution to compare, unknown duration means no duration check.
func TestSkipWhenMissingInputsNeverMatch(t *testing.T) {
	audioOnly := mkvFile(audio(0, "eng"))
	plan, err := Evaluate(skipPolicy(t, "      resolution: 1080p"), audioOnly, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Skipped)

	noDuration := mkvFile(video(0, "h264", 1080))
	assertRan(t, noDuration, "      duration_over: 1m")
}

// Predicates are a disjunction: any one match skips the phase.
func TestSkipWhenIsDisjunction(t *testing.T) {
	file := mkvFile(video(0, "h264", 1080), audio(1, "eng", func(tr *domain.Track) { tr.Codec = "aac" }))
	assertSkipped(t, file, `      video_codec: [av1]
      audio_codec_exists: aac`, "audio_codec_exists")
}
