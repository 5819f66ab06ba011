package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

func loadPolicy(t *testing.T, doc string) *policy.Policy {
	t.Helper()
	pol, err := policy.Load([]byte(doc))
	require.NoError(t, err)
	return pol
}

func mkvFile(tracks ...domain.Track) domain.FileInfo {
	return domain.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "mkv",
		SizeBytes: 4 << 30,
		Tracks:    tracks,
	}
}

func video(index int, codec string, height int) domain.Track {
	return domain.Track{Index: index, Kind: domain.TrackVideo, Codec: codec, Language: "und", Width: height * 16 / 9, Height: height}
}

func audio(index int, lang string, opts ...func(*domain.Track)) domain.Track {
	t := domain.Track{Index: index, Kind: domain.TrackAudio, Codec: "ac3", Language: lang, Channels: 6}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func subtitle(index int, lang string, opts ...func(*domain.Track)) domain.Track {
	t := domain.Track{Index: index, Kind: domain.TrackSubtitle, Codec: "subrip", Language: lang}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// German audio, English subtitle: the conditional rule forces the
// subtitle, with exactly one SET_FORCED action.
func TestForeignAudioForcesSubtitle(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: forced-subs
phases:
  - name: normalize
    conditional_rules:
      rules:
        - name: force_english_subs_for_foreign_audio
          when: not exists(audio, language==eng)
          then:
            - set_forced:
                track_type: subtitle
                language: eng
                value: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "ger"),
		subtitle(2, "eng"),
	)

	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	require.Len(t, plan.Actions, 1)
	action := plan.Actions[0]
	assert.Equal(t, domain.ActionSetForced, action.Kind)
	assert.Equal(t, 2, action.TrackIndex)
	assert.Equal(t, "false", action.CurrentValue)
	assert.Equal(t, "true", action.DesiredValue)

	// Re-evaluation against the post-apply state yields an empty plan.
	file.Tracks[2].Forced = true
	replan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, replan.IsEmpty())
}

// English audio present: the rule does not fire and the trace records it.
func TestEnglishAudioLeavesSubtitleAlone(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: forced-subs
phases:
  - name: normalize
    conditional_rules:
      rules:
        - name: force_english_subs_for_foreign_audio
          when: not exists(audio, language==eng)
          then:
            - set_forced:
                track_type: subtitle
                language: eng
                value: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng"),
		subtitle(2, "eng"),
	)

	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	require.Len(t, plan.Trace, 1)
	assert.Equal(t, "force_english_subs_for_foreign_audio", plan.Trace[0].Rule)
	assert.False(t, plan.Trace[0].Matched)
}

func TestZeroTrackFileProducesEmptyPlan(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [eng]
`)
	plan, err := Evaluate(pol, mkvFile(), domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

func TestZeroPhasePolicyProducesEmptyPlan(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: empty
phases: []
`)
	plan, err := Evaluate(pol, mkvFile(video(0, "h264", 1080)), domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

func TestAudioFilterRemovesUnwantedLanguages(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [eng, jpn]
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng"),
		audio(2, "fre"),
		audio(3, "jpn"),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, domain.ActionRemoveTrack, plan.Actions[0].Kind)
	assert.Equal(t, 2, plan.Actions[0].TrackIndex)
}

func TestAudioFilterFallbackKeepAll(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [kor]
      fallback: keep_all
`)
	file := mkvFile(video(0, "h264", 1080), audio(1, "eng"), audio(2, "fre"))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	assert.NotEmpty(t, plan.Warnings)
}

func TestAudioFilterFallbackError(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [kor]
      fallback: error
`)
	file := mkvFile(video(0, "h264", 1080), audio(1, "eng"))
	_, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPreflight)
}

func TestAudioFilterContentLanguageFallback(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [kor]
      fallback: content_language
`)
	file := mkvFile(video(0, "h264", 1080), audio(1, "jpn"), audio(2, "eng"))
	analyses := domain.AnalysisSet{
		Language: map[int]domain.LanguageAnalysis{
			1: {TrackIndex: 1, Language: "jpn", Confidence: 0.95, IsOriginal: true},
		},
	}
	plan, err := Evaluate(pol, file, analyses)
	require.NoError(t, err)

	// The Japanese original survives via the fallback, English is removed.
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, domain.ActionRemoveTrack, plan.Actions[0].Kind)
	assert.Equal(t, 2, plan.Actions[0].TrackIndex)
}

func TestSubtitleFilterPreservesForced(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    subtitle_filter:
      languages: [eng]
      preserve_forced: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		subtitle(1, "ger", func(t *domain.Track) { t.Forced = true }),
		subtitle(2, "fre"),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, 2, plan.Actions[0].TrackIndex)
}

// After the default-flag normalizer, exactly one track per kind carries
// the default flag.
func TestDefaultFlagNormalization(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: defaults
phases:
  - name: defaults
    default_flags:
      audio_language_preference: [jpn, eng]
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Default = true }),
		audio(2, "jpn"),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	// Simulate the plan and count defaults per kind.
	defaults := map[int]bool{0: false, 1: true, 2: false}
	for _, a := range plan.Actions {
		switch a.Kind {
		case domain.ActionSetDefault:
			defaults[a.TrackIndex] = true
		case domain.ActionClearDefault:
			defaults[a.TrackIndex] = false
		}
	}
	assert.True(t, defaults[0], "first video becomes default")
	assert.False(t, defaults[1], "non-preferred audio cleared")
	assert.True(t, defaults[2], "preferred-language audio set default")
}

func TestSubtitleForcedWhenAudioDiffers(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: defaults
phases:
  - name: defaults
    default_flags:
      audio_language_preference: [eng]
      subtitle_language_preference: [eng]
      set_subtitle_forced_when_audio_differs: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "jpn"),
		subtitle(2, "eng"),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	forced := false
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionSetForced && a.TrackIndex == 2 {
			forced = true
		}
	}
	assert.True(t, forced, "English subtitle forced for Japanese default audio")
}

func TestSkipWhenVideoCodec(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: transcode
phases:
  - name: transcode
    skip_when:
      video_codec: [hevc]
    transcode:
      video_codec: hevc
`)
	file := mkvFile(video(0, "h265", 2160), audio(1, "eng"))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "video_codec", plan.Skipped[0].Condition)
}

func TestTranscodePlanningWithAliases(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: transcode
phases:
  - name: transcode
    transcode:
      video_codec: hevc
      audio_codec: aac
      audio_bitrate: 192k
      audio_preserve_codecs: [truehd, dts-hd]
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Codec = "dts-hd ma" }),
		audio(2, "eng", func(t *domain.Track) { t.Codec = "ac3" }),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	kinds := map[domain.ActionKind]int{}
	for _, a := range plan.Actions {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[domain.ActionTranscodeVideo])
	assert.Equal(t, 1, kinds[domain.ActionCopyStream], "dts-hd ma preserved")
	assert.Equal(t, 1, kinds[domain.ActionTranscodeAudio], "ac3 transcoded")
}

// hevc source with hevc target: aliases match, no transcode planned.
func TestTranscodeSkipsMatchingCodec(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: transcode
phases:
  - name: transcode
    transcode:
      video_codec: h265
`)
	file := mkvFile(video(0, "hevc", 2160), audio(1, "eng"))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

// A skip flag raised in an earlier phase suppresses a later phase's
// transcode actions.
func TestSkipFlagCrossesPhases(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: conditional-transcode
phases:
  - name: guards
    conditional_rules:
      rules:
        - name: spare_small_files
          when: exists(video, height<720)
          then:
            - skip_video_transcode
  - name: transcode
    transcode:
      video_codec: hevc
`)
	file := mkvFile(video(0, "h264", 480), audio(1, "eng"))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, plan.SkipVideoTranscode)
	for _, a := range plan.Actions {
		assert.NotEqual(t, domain.ActionTranscodeVideo, a.Kind)
	}
}

func TestConditionalFailAbortsEvaluation(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: guarded
phases:
  - name: guards
    conditional_rules:
      rules:
        - name: refuse_no_audio
          when: count(audio)==0
          then:
            - fail: "no audio in {filename}"
`)
	file := mkvFile(video(0, "h264", 1080))
	_, err := Evaluate(pol, file, domain.AnalysisSet{})
	var failErr *domain.ConditionalFailError
	require.ErrorAs(t, err, &failErr)
	assert.Equal(t, "refuse_no_audio", failErr.Rule)
	assert.Equal(t, "no audio in movie.mkv", failErr.Message)
}

func TestRuleModeFirstStopsAfterMatch(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: first
phases:
  - name: rules
    conditional_rules:
      mode: first
      rules:
        - name: first_rule
          when: exists(video)
          then:
            - warn: "one"
        - name: second_rule
          when: exists(video)
          then:
            - warn: "two"
`)
	file := mkvFile(video(0, "h264", 1080))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, plan.Warnings)
	assert.Len(t, plan.Trace, 1)
}

func TestSynthesisScoringPrefersLanguageAndChannels(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: synth
phases:
  - name: synth
    audio_synthesis:
      - name: stereo-eng
        codec: aac
        channels: 2
        bitrate: 192k
        skip_if_exists:
          track_type: audio
          codec: aac
          channels: 2
        source_preferences:
          - language: eng
          - channels: max
        position: end
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Channels = 6; t.Codec = "dts" }),
		audio(2, "fre", func(t *domain.Track) { t.Channels = 8 }),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	require.Len(t, plan.Actions, 1)
	action := plan.Actions[0]
	require.Equal(t, domain.ActionSynthesizeAudio, action.Kind)
	require.NotNil(t, action.Synthesis)
	// eng(+100) + 6ch(+60) = 160 beats 8ch(+80).
	assert.Equal(t, 1, action.Synthesis.SourceIndex)
	assert.Equal(t, "aac", action.Synthesis.Codec)
	assert.Equal(t, 2, action.Synthesis.Channels)
	assert.NotEmpty(t, action.Synthesis.DownmixFilter)
	assert.Equal(t, "eng", action.Synthesis.Language, "language inherited from source")
}

func TestSynthesisSkippedWhenTargetExists(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: synth
phases:
  - name: synth
    audio_synthesis:
      - name: stereo-eng
        codec: aac
        channels: 2
        skip_if_exists:
          track_type: audio
          codec: aac
          channels: 2
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Codec = "aac"; t.Channels = 2 }),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

// The filter wins over synthesis: a preferred source that the filter
// removes is never chosen; a surviving track is used instead.
func TestSynthesisSkipsFilteredSource(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: synth
phases:
  - name: synth
    audio_filter:
      languages: [eng]
      fallback: keep_first
    audio_synthesis:
      - name: stereo-fre
        codec: aac
        channels: 2
        create_if: exists(video)
        source_preferences:
          - language: fre
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Channels = 2 }),
		audio(2, "fre", func(t *domain.Track) { t.Channels = 2 }),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	// The French track is removed; synthesis falls back to the surviving
	// English track rather than the filtered source.
	for _, a := range plan.Actions {
		if a.Kind == domain.ActionSynthesizeAudio {
			assert.Equal(t, 1, a.Synthesis.SourceIndex)
		}
	}
}

func TestContainerConversionIncompatibleCodecErrors(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: convert
phases:
  - name: convert
    container:
      target: mp4
      on_incompatible_codec: error
`)
	file := domain.FileInfo{
		Path:      "/library/movie.avi",
		Container: "avi",
		Tracks: []domain.Track{
			video(0, "h264", 1080),
			audio(1, "eng", func(t *domain.Track) { t.Codec = "truehd" }),
		},
	}
	_, err := Evaluate(pol, file, domain.AnalysisSet{})
	var incompatErr *domain.IncompatibleCodecError
	require.ErrorAs(t, err, &incompatErr)
	assert.Equal(t, "mp4", incompatErr.Container)
	require.NotEmpty(t, incompatErr.Streams)
	assert.Equal(t, 1, incompatErr.Streams[0].Index)
}

func TestDeterministicOutput(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: filter
phases:
  - name: filter
    audio_filter:
      languages: [eng]
    container_metadata:
      title: ""
      encoder: ""
    default_flags:
      audio_language_preference: [eng]
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "fre"),
		audio(2, "eng"),
	)
	file.Tags = map[string]string{"title": "Old Title", "encoder": "x264"}

	first, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	second, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPluginMetadataCondition(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: plugin
phases:
  - name: rules
    conditional_rules:
      rules:
        - name: anime_gets_jpn_default
          when:
            plugin_metadata:
              plugin: radarr
              field: original_language
              value: jpn
          then:
            - set_default:
                track_type: audio
                language: jpn
                value: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		audio(1, "eng", func(t *domain.Track) { t.Default = true }),
		audio(2, "jpn"),
	)
	analyses := domain.AnalysisSet{
		Plugins: map[string]map[string]any{
			"radarr": {"original_language": "jpn"},
		},
	}
	plan, err := Evaluate(pol, file, analyses)
	require.NoError(t, err)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, domain.ActionSetDefault, plan.Actions[0].Kind)
	assert.Equal(t, 2, plan.Actions[0].TrackIndex)
}

func TestSetLanguageFromPluginMetadataAbsentDropsWithWarning(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: plugin
phases:
  - name: rules
    conditional_rules:
      rules:
        - name: tag_language
          when: exists(audio)
          then:
            - set_language:
                track_type: audio
                from_plugin_metadata:
                  plugin: radarr
                  field: original_language
`)
	file := mkvFile(video(0, "h264", 1080), audio(1, "und"))
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
	assert.NotEmpty(t, plan.Warnings)
}

func TestPreActionsClearFlagsBeforeFiltering(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: cleanup
phases:
  - name: cleanup
    subtitle_actions:
      clear_all_forced: true
`)
	file := mkvFile(
		video(0, "h264", 1080),
		subtitle(1, "eng", func(t *domain.Track) { t.Forced = true }),
		subtitle(2, "ger", func(t *domain.Track) { t.Forced = true }),
	)
	plan, err := Evaluate(pol, file, domain.AnalysisSet{})
	require.NoError(t, err)

	require.Len(t, plan.Actions, 2)
	for _, a := range plan.Actions {
		assert.Equal(t, domain.ActionClearForced, a.Kind)
	}
}

func TestMultiLanguageCondition(t *testing.T) {
	pol := loadPolicy(t, `
schema_version: 1
name: multilang
phases:
  - name: rules
    conditional_rules:
      rules:
        - name: warn_multi_language
          when:
            audio_is_multi_language:
              threshold: 0.1
          then:
            - warn: "mixed audio in {filename}"
`)
	file := mkvFile(video(0, "h264", 1080), audio(1, "eng"))
	analyses := domain.AnalysisSet{
		Segments: map[int][]domain.LanguageSegment{
			1: {
				{TrackIndex: 1, Language: "eng", Fraction: 0.8},
				{TrackIndex: 1, Language: "fre", Fraction: 0.2},
			},
		},
	}
	plan, err := Evaluate(pol, file, analyses)
	require.NoError(t, err)
	assert.Equal(t, []string{"mixed audio in movie.mkv"}, plan.Warnings)
}
