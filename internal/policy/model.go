package policy

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is the policy document schema this build reads and
// writes.
const CurrentSchemaVersion = 1

// Policy is the schema-versioned, immutable model of one policy document.
type Policy struct {
	SchemaVersion int     `yaml:"schema_version" validate:"required,min=1"`
	Name          string  `yaml:"name" validate:"required"`
	Phases        []Phase `yaml:"phases" validate:"dive"`
}

// Phase is one named ordered unit of operations. Phases execute strictly
// in source order; within a phase the evaluator applies its fixed
// sub-order regardless of YAML key order.
type Phase struct {
	Name     string    `yaml:"name" validate:"required"`
	OnError  string    `yaml:"on_error,omitempty" validate:"omitempty,oneof=fail continue"`
	SkipWhen *SkipWhen `yaml:"skip_when,omitempty"`

	Rules *RuleSet `yaml:"conditional_rules,omitempty"`

	AudioActions    *TrackActions `yaml:"audio_actions,omitempty"`
	SubtitleActions *TrackActions `yaml:"subtitle_actions,omitempty"`

	AudioFilter      *AudioFilter      `yaml:"audio_filter,omitempty"`
	SubtitleFilter   *SubtitleFilter   `yaml:"subtitle_filter,omitempty"`
	AttachmentFilter *AttachmentFilter `yaml:"attachment_filter,omitempty"`

	DefaultFlags *DefaultFlags `yaml:"default_flags,omitempty"`

	Container         *ContainerConversion `yaml:"container,omitempty"`
	ContainerMetadata map[string]string    `yaml:"container_metadata,omitempty"`

	Synthesis []SynthesisDef `yaml:"audio_synthesis,omitempty" validate:"dive"`

	Transcode *TranscodeConfig `yaml:"transcode,omitempty"`

	FileTimestamp *FileTimestamp `yaml:"file_timestamp,omitempty"`
}

// SkipWhen is a disjunction of concrete predicates; any match skips the
// phase.
type SkipWhen struct {
	VideoCodec             []string `yaml:"video_codec,omitempty"`
	AudioCodecExists       string   `yaml:"audio_codec_exists,omitempty"`
	SubtitleLanguageExists string   `yaml:"subtitle_language_exists,omitempty"`
	Container              []string `yaml:"container,omitempty"`
	Resolution             string   `yaml:"resolution,omitempty"`
	ResolutionUnder        string   `yaml:"resolution_under,omitempty"`
	FileSizeUnder          string   `yaml:"file_size_under,omitempty"`
	FileSizeOver           string   `yaml:"file_size_over,omitempty"`
	DurationUnder          string   `yaml:"duration_under,omitempty"`
	DurationOver           string   `yaml:"duration_over,omitempty"`
}

// RuleSet holds a phase's conditional rules. Mode "first" stops after the
// first matched rule; "all" (the default) evaluates every rule.
type RuleSet struct {
	Mode  string `yaml:"mode,omitempty" validate:"omitempty,oneof=first all"`
	Rules []Rule `yaml:"rules" validate:"dive"`
}

// Rule is a when/then/else triple.
type Rule struct {
	Name string       `yaml:"name" validate:"required"`
	When Condition    `yaml:"when"`
	Then []RuleAction `yaml:"then"`
	Else []RuleAction `yaml:"else,omitempty"`
}

// TrackActions are pre-processing actions applied before filtering so
// filter decisions see normalized flags.
type TrackActions struct {
	ClearAllForced  bool `yaml:"clear_all_forced,omitempty"`
	ClearAllDefault bool `yaml:"clear_all_default,omitempty"`
	ClearAllTitles  bool `yaml:"clear_all_titles,omitempty"`
}

// AudioFilter removes audio tracks whose language is not wanted, with a
// minimum-track floor and a declared fallback when the floor is violated.
type AudioFilter struct {
	Languages []string `yaml:"languages" validate:"required,min=1"`
	// Fallback is one of content_language, keep_all, keep_first, error.
	Fallback string `yaml:"fallback,omitempty" validate:"omitempty,oneof=content_language keep_all keep_first error"`
	Minimum  int    `yaml:"minimum,omitempty" validate:"omitempty,min=1"`

	KeepMusicTracks     *bool `yaml:"keep_music_tracks,omitempty"`
	KeepSFXTracks       *bool `yaml:"keep_sfx_tracks,omitempty"`
	KeepNonSpeechTracks *bool `yaml:"keep_non_speech_tracks,omitempty"`
}

// EffectiveMinimum returns the minimum surviving-track count (default 1).
func (f AudioFilter) EffectiveMinimum() int {
	if f.Minimum < 1 {
		return 1
	}
	return f.Minimum
}

// KeepMusic reports whether music tracks bypass the language filter
// (default true).
func (f AudioFilter) KeepMusic() bool {
	return f.KeepMusicTracks == nil || *f.KeepMusicTracks
}

// KeepSFX reports whether sfx tracks bypass the language filter.
func (f AudioFilter) KeepSFX() bool {
	return f.KeepSFXTracks == nil || *f.KeepSFXTracks
}

// KeepNonSpeech reports whether non-speech tracks bypass the filter.
func (f AudioFilter) KeepNonSpeech() bool {
	return f.KeepNonSpeechTracks == nil || *f.KeepNonSpeechTracks
}

// SubtitleFilter filters subtitle tracks. remove_all overrides everything;
// preserve_forced keeps forced subtitles regardless of language.
type SubtitleFilter struct {
	Languages      []string `yaml:"languages,omitempty"`
	PreserveForced bool     `yaml:"preserve_forced,omitempty"`
	RemoveAll      bool     `yaml:"remove_all,omitempty"`
}

// AttachmentFilter either removes all attachments or passes them through.
type AttachmentFilter struct {
	RemoveAll bool `yaml:"remove_all,omitempty"`
}

// DefaultFlags configures default/forced flag normalization.
type DefaultFlags struct {
	AudioLanguagePreference    []string `yaml:"audio_language_preference,omitempty"`
	SubtitleLanguagePreference []string `yaml:"subtitle_language_preference,omitempty"`

	SetFirstVideoDefault        *bool `yaml:"set_first_video_default,omitempty"`
	SetPreferredAudioDefault    *bool `yaml:"set_preferred_audio_default,omitempty"`
	SetPreferredSubtitleDefault bool  `yaml:"set_preferred_subtitle_default,omitempty"`
	ClearOtherDefaults          *bool `yaml:"clear_other_defaults,omitempty"`

	// SetSubtitleForcedWhenAudioDiffers forces the preferred subtitle when
	// the chosen default audio language is not the preferred listener
	// language, so subtitles display automatically for foreign audio.
	SetSubtitleForcedWhenAudioDiffers bool `yaml:"set_subtitle_forced_when_audio_differs,omitempty"`
}

func (d DefaultFlags) FirstVideoDefault() bool {
	return d.SetFirstVideoDefault == nil || *d.SetFirstVideoDefault
}

func (d DefaultFlags) PreferredAudioDefault() bool {
	return d.SetPreferredAudioDefault == nil || *d.SetPreferredAudioDefault
}

func (d DefaultFlags) ClearOthers() bool {
	return d.ClearOtherDefaults == nil || *d.ClearOtherDefaults
}

// ContainerConversion requests a lossless remux into a target container.
type ContainerConversion struct {
	Target string `yaml:"target" validate:"required,oneof=mkv mp4"`
	// OnIncompatibleCodec is one of error, skip, transcode.
	OnIncompatibleCodec string `yaml:"on_incompatible_codec,omitempty" validate:"omitempty,oneof=error skip transcode"`
}

// ChannelPref selects source tracks by channel count: "max", "min", or an
// exact count.
type ChannelPref struct {
	Max   bool
	Min   bool
	Exact int
}

func (c *ChannelPref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("channels preference must be \"max\", \"min\", or a count")
	}
	switch node.Value {
	case "max":
		*c = ChannelPref{Max: true}
		return nil
	case "min":
		*c = ChannelPref{Min: true}
		return nil
	}
	n, err := strconv.Atoi(node.Value)
	if err != nil || n < 1 {
		return fmt.Errorf("invalid channels preference %q", node.Value)
	}
	*c = ChannelPref{Exact: n}
	return nil
}

func (c ChannelPref) MarshalYAML() (any, error) {
	switch {
	case c.Max:
		return "max", nil
	case c.Min:
		return "min", nil
	default:
		return c.Exact, nil
	}
}

// SynthesisDef declares one audio track to synthesize.
type SynthesisDef struct {
	Name     string `yaml:"name" validate:"required"`
	Codec    string `yaml:"codec" validate:"required"`
	Channels int    `yaml:"channels" validate:"required,min=1,max=8"`
	Bitrate  string `yaml:"bitrate,omitempty"`

	CreateIf     *Condition  `yaml:"create_if,omitempty"`
	SkipIfExists *TrackQuery `yaml:"skip_if_exists,omitempty"`

	SourcePreferences []PreferenceCriterion `yaml:"source_preferences,omitempty"`

	// Title and Language are either the literal value or "inherit" to copy
	// from the source track.
	Title    string `yaml:"title,omitempty"`
	Language string `yaml:"language,omitempty"`

	// Position is "after_source", "end", or a 1-based index.
	Position string `yaml:"position,omitempty"`
}

// PreferenceCriterion scores candidate source tracks; at least one
// criterion must be set.
type PreferenceCriterion struct {
	Language      StringList   `yaml:"language,omitempty"`
	NotCommentary bool         `yaml:"not_commentary,omitempty"`
	Channels      *ChannelPref `yaml:"channels,omitempty"`
	Codec         StringList   `yaml:"codec,omitempty"`
}

// TranscodeConfig declares codec targets for the transcode operation.
type TranscodeConfig struct {
	VideoCodec   string `yaml:"video_codec,omitempty"`
	VideoBitrate string `yaml:"video_bitrate,omitempty"`
	CRF          *int   `yaml:"crf,omitempty" validate:"omitempty,min=0,max=51"`
	Preset       string `yaml:"preset,omitempty"`

	// Hardware is auto, nvenc, qsv, vaapi, or none.
	Hardware      string `yaml:"hardware,omitempty" validate:"omitempty,oneof=auto nvenc qsv vaapi none"`
	FallbackToCPU *bool  `yaml:"fallback_to_cpu,omitempty"`

	AudioPreserveCodecs []string `yaml:"audio_preserve_codecs,omitempty"`
	AudioCodec          string   `yaml:"audio_codec,omitempty"`
	AudioBitrate        string   `yaml:"audio_bitrate,omitempty"`
	// AudioDownmix adds one extra downmixed track: "stereo" or "5.1".
	AudioDownmix string `yaml:"audio_downmix,omitempty" validate:"omitempty,oneof=stereo 5.1"`
}

// CPUFallback reports whether software fallback is allowed (default true).
func (t TranscodeConfig) CPUFallback() bool {
	return t.FallbackToCPU == nil || *t.FallbackToCPU
}

// HardwareMode returns the hardware preference (default auto).
func (t TranscodeConfig) HardwareMode() string {
	if t.Hardware == "" {
		return "auto"
	}
	return t.Hardware
}

// FileTimestamp controls the file mtime after processing.
type FileTimestamp struct {
	Mode string `yaml:"mode,omitempty" validate:"omitempty,oneof=preserve release_date now"`
	// Fallback applies when release_date has no date: preserve, now, skip.
	Fallback   string `yaml:"fallback,omitempty" validate:"omitempty,oneof=preserve now skip"`
	DateSource string `yaml:"date_source,omitempty"`
}

func (t FileTimestamp) EffectiveMode() string {
	if t.Mode == "" {
		return "preserve"
	}
	return t.Mode
}

func (t FileTimestamp) EffectiveFallback() string {
	if t.Fallback == "" {
		return "preserve"
	}
	return t.Fallback
}

// SynthesisNameSafe rejects synthesis names that would escape the temp
// directory when used in temp-file paths.
func SynthesisNameSafe(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return !strings.Contains(name, "..")
}

// parsePosition validates a synthesis position declaration.
func parsePosition(position string) (string, bool) {
	switch position {
	case "", "after_source", "end":
		return position, true
	}
	if n, err := strconv.Atoi(position); err == nil && n >= 1 {
		return position, true
	}
	return "", false
}
