package domain

import "time"

type ActionKind string

const (
	ActionSetDefault           ActionKind = "SET_DEFAULT"
	ActionClearDefault         ActionKind = "CLEAR_DEFAULT"
	ActionSetForced            ActionKind = "SET_FORCED"
	ActionClearForced          ActionKind = "CLEAR_FORCED"
	ActionSetTitle             ActionKind = "SET_TITLE"
	ActionSetLanguage          ActionKind = "SET_LANGUAGE"
	ActionRemoveTrack          ActionKind = "REMOVE_TRACK"
	ActionReorder              ActionKind = "REORDER"
	ActionSetContainerMetadata ActionKind = "SET_CONTAINER_METADATA"
	ActionTranscodeVideo       ActionKind = "TRANSCODE_VIDEO"
	ActionTranscodeAudio       ActionKind = "TRANSCODE_AUDIO"
	ActionCopyStream           ActionKind = "COPY_STREAM"
	ActionRemuxTo              ActionKind = "REMUX_TO"
	ActionSynthesizeAudio      ActionKind = "SYNTHESIZE_AUDIO"
	ActionSetFileMTime         ActionKind = "SET_FILE_MTIME"
)

// SynthesisSpec is the payload of a SYNTHESIZE_AUDIO action: which track
// feeds the new one and what it becomes.
type SynthesisSpec struct {
	Name          string `json:"name"`
	SourceIndex   int    `json:"sourceIndex"`
	Codec         string `json:"codec"`
	Channels      int    `json:"channels"`
	Bitrate       string `json:"bitrate,omitempty"`
	DownmixFilter string `json:"downmixFilter,omitempty"`
	Title         string `json:"title,omitempty"`
	Language      string `json:"language,omitempty"`
	// Position is "after_source", "end", or a 1-based index rendered as a
	// decimal string.
	Position string `json:"position,omitempty"`
}

// PlannedAction is one mutation in a Plan. Kind is the discriminator;
// which other fields are meaningful depends on it. For track-flag and
// title/language mutations CurrentValue/DesiredValue carry the before and
// after values. SET_CONTAINER_METADATA stores the field name in
// CurrentValue and the desired text in DesiredValue (empty string deletes
// the tag).
type PlannedAction struct {
	Kind         ActionKind `json:"kind"`
	TrackIndex   int        `json:"trackIndex,omitempty"`
	CurrentValue string     `json:"currentValue,omitempty"`
	DesiredValue string     `json:"desiredValue,omitempty"`

	// REORDER payload: stream indices in their new order.
	NewOrder []int `json:"newOrder,omitempty"`

	// Transcode payload.
	TargetCodec   string `json:"targetCodec,omitempty"`
	TargetBitrate string `json:"targetBitrate,omitempty"`

	// REMUX_TO payload.
	TargetContainer string `json:"targetContainer,omitempty"`

	// SYNTHESIZE_AUDIO payload.
	Synthesis *SynthesisSpec `json:"synthesis,omitempty"`

	// SET_FILE_MTIME payload.
	MTime time.Time `json:"mtime,omitempty"`
}

// RuleTrace records one conditional rule evaluation for debuggability.
type RuleTrace struct {
	Phase   string `json:"phase"`
	Rule    string `json:"rule"`
	Matched bool   `json:"matched"`
	Detail  string `json:"detail,omitempty"`
}

// SkipRecord notes a phase that was skipped and why.
type SkipRecord struct {
	Phase     string `json:"phase"`
	Condition string `json:"condition"`
	Value     string `json:"value,omitempty"`
	Message   string `json:"message"`
}

// Plan is the evaluator's deterministic output for one file: an ordered
// action list plus the accumulated warnings, skip flags, and the rule
// evaluation trace. Plans are never mutated once produced, only superseded
// by re-evaluation.
type Plan struct {
	FilePath        string          `json:"filePath"`
	SourceContainer string          `json:"sourceContainer"`
	Actions         []PlannedAction `json:"actions"`
	Warnings        []string        `json:"warnings,omitempty"`
	Skipped         []SkipRecord    `json:"skipped,omitempty"`
	Trace           []RuleTrace     `json:"trace,omitempty"`

	SkipVideoTranscode bool `json:"skipVideoTranscode,omitempty"`
	SkipAudioTranscode bool `json:"skipAudioTranscode,omitempty"`
	SkipTrackFilter    bool `json:"skipTrackFilter,omitempty"`
}

// IsEmpty reports whether the plan carries no mutations at all.
func (p Plan) IsEmpty() bool {
	return len(p.Actions) == 0
}

// HasKind reports whether any action of the given kind is present.
func (p Plan) HasKind(kind ActionKind) bool {
	for _, a := range p.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// metadataOnlyKinds are realizable without rewriting the media payload.
var metadataOnlyKinds = map[ActionKind]bool{
	ActionSetDefault:           true,
	ActionClearDefault:         true,
	ActionSetForced:            true,
	ActionClearForced:          true,
	ActionSetTitle:             true,
	ActionSetLanguage:          true,
	ActionSetContainerMetadata: true,
	ActionSetFileMTime:         true,
}

// MetadataOnly reports whether every action in the plan is a metadata-like
// mutation (track flags, titles, languages, container tags, timestamps).
func (p Plan) MetadataOnly() bool {
	for _, a := range p.Actions {
		if !metadataOnlyKinds[a.Kind] {
			return false
		}
	}
	return true
}
