package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomparity/vpo/internal/domain"
)

const fullDocument = `
schema_version: 1
name: library-default
phases:
  - name: normalize
    on_error: continue
    skip_when:
      video_codec: [hevc, av1]
      file_size_under: 200M
    audio_actions:
      clear_all_forced: true
    conditional_rules:
      mode: first
      rules:
        - name: force_english_subs_for_foreign_audio
          when: not exists(audio, language==eng)
          then:
            - set_forced:
                track_type: subtitle
                language: eng
                value: true
          else:
            - warn: "english audio in {filename}"
    audio_filter:
      languages: [eng, jpn]
      fallback: content_language
      minimum: 1
    subtitle_filter:
      languages: [eng]
      preserve_forced: true
    default_flags:
      audio_language_preference: [jpn, eng]
      set_subtitle_forced_when_audio_differs: true
  - name: transcode
    transcode:
      video_codec: hevc
      crf: 20
      hardware: auto
      audio_preserve_codecs: [truehd, dts-hd]
      audio_codec: aac
      audio_bitrate: 192k
    audio_synthesis:
      - name: stereo-compat
        codec: aac
        channels: 2
        bitrate: 192k
        create_if: not exists(audio, channels==2)
        source_preferences:
          - language: [eng]
          - channels: max
        position: after_source
    file_timestamp:
      mode: release_date
      fallback: preserve
`

func TestLoadFullDocument(t *testing.T) {
	pol, err := Load([]byte(fullDocument))
	require.NoError(t, err)

	assert.Equal(t, 1, pol.SchemaVersion)
	assert.Equal(t, "library-default", pol.Name)
	require.Len(t, pol.Phases, 2)

	first := pol.Phases[0]
	assert.Equal(t, "continue", first.OnError)
	assert.Equal(t, []string{"hevc", "av1"}, first.SkipWhen.VideoCodec)
	require.NotNil(t, first.Rules)
	assert.Equal(t, "first", first.Rules.Mode)
	require.Len(t, first.Rules.Rules, 1)

	rule := first.Rules.Rules[0]
	assert.NotNil(t, rule.When.Compiled, "expression compiled at load time")
	require.Len(t, rule.Then, 1)
	assert.Equal(t, ActionSetForced, rule.Then[0].Kind)
	assert.True(t, rule.Then[0].Value)
	require.Len(t, rule.Else, 1)
	assert.Equal(t, ActionWarn, rule.Else[0].Kind)

	second := pol.Phases[1]
	require.NotNil(t, second.Transcode)
	assert.Equal(t, "auto", second.Transcode.HardwareMode())
	assert.True(t, second.Transcode.CPUFallback())
	require.Len(t, second.Synthesis, 1)
	synth := second.Synthesis[0]
	assert.NotNil(t, synth.CreateIf.Compiled)
	require.Len(t, synth.SourcePreferences, 2)
	assert.True(t, synth.SourcePreferences[1].Channels.Max)
}

// Round-trip: Load(Serialize(p)) == p for every valid policy.
func TestPolicyRoundTrip(t *testing.T) {
	first, err := Load([]byte(fullDocument))
	require.NoError(t, err)

	data, err := Serialize(first)
	require.NoError(t, err)

	second, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadRejectsBadExpression(t *testing.T) {
	doc := `
schema_version: 1
name: broken
phases:
  - name: rules
    conditional_rules:
      rules:
        - name: broken_rule
          when: exists(audio
          then:
            - skip_video_transcode
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoadRejectsMissingSchemaVersion(t *testing.T) {
	_, err := Load([]byte("name: x\nphases: []\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestLoadRejectsNewerSchema(t *testing.T) {
	_, err := Load([]byte("schema_version: 99\nname: x\nphases: []\n"))
	require.Error(t, err)
}

func TestLoadRejectsUnsafeSynthesisName(t *testing.T) {
	for _, name := range []string{"../evil", "a/b", `a\\b`, "x..y"} {
		doc := `
schema_version: 1
name: synth
phases:
  - name: synth
    audio_synthesis:
      - name: "` + name + `"
        codec: aac
        channels: 2
`
		_, err := Load([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadRejectsUnknownRuleAction(t *testing.T) {
	doc := `
schema_version: 1
name: x
phases:
  - name: rules
    conditional_rules:
      rules:
        - name: r
          when: exists(audio)
          then:
            - explode: now
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
}

func TestLoadRejectsBadSizeLiteral(t *testing.T) {
	doc := `
schema_version: 1
name: x
phases:
  - name: p
    skip_when:
      file_size_under: lots
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
}

func TestLoadRejectsEmptyAudioLanguages(t *testing.T) {
	doc := `
schema_version: 1
name: x
phases:
  - name: p
    audio_filter:
      languages: []
`
	_, err := Load([]byte(doc))
	require.Error(t, err)
}

func TestRuleSetModeDefaultsToAll(t *testing.T) {
	doc := `
schema_version: 1
name: x
phases:
  - name: p
    conditional_rules:
      rules:
        - name: r
          when: exists(audio)
          then:
            - skip_track_filter
`
	pol, err := Load([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "all", pol.Phases[0].Rules.Mode)
}
