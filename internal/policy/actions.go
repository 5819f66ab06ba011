package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule action kinds.
const (
	ActionSkipVideoTranscode   = "skip_video_transcode"
	ActionSkipAudioTranscode   = "skip_audio_transcode"
	ActionSkipTrackFilter      = "skip_track_filter"
	ActionWarn                 = "warn"
	ActionFail                 = "fail"
	ActionSetForced            = "set_forced"
	ActionSetDefault           = "set_default"
	ActionSetLanguage          = "set_language"
	ActionSetContainerMetadata = "set_container_metadata"
)

var skipActionKinds = map[string]bool{
	ActionSkipVideoTranscode: true,
	ActionSkipAudioTranscode: true,
	ActionSkipTrackFilter:    true,
}

// PluginRef names one field of one plugin's metadata blob, read at
// evaluation time.
type PluginRef struct {
	Plugin string `yaml:"plugin"`
	Field  string `yaml:"field"`
}

// flagActionSpec is the payload of set_forced / set_default.
type flagActionSpec struct {
	TrackType string `yaml:"track_type"`
	Language  string `yaml:"language,omitempty"`
	Value     *bool  `yaml:"value,omitempty"`
}

// languageActionSpec is the payload of set_language.
type languageActionSpec struct {
	TrackType          string     `yaml:"track_type"`
	Language           string     `yaml:"language,omitempty"`
	FromPluginMetadata *PluginRef `yaml:"from_plugin_metadata,omitempty"`
}

// metadataActionSpec is the payload of set_container_metadata. An empty
// value deletes the tag.
type metadataActionSpec struct {
	Field              string     `yaml:"field"`
	Value              *string    `yaml:"value,omitempty"`
	FromPluginMetadata *PluginRef `yaml:"from_plugin_metadata,omitempty"`
}

// RuleAction is one entry of a rule's then/else list. In YAML a bare
// string names a skip action; map forms carry a single key naming the
// action kind with its payload as the value.
type RuleAction struct {
	Kind string

	// warn / fail payload. Placeholders {filename}, {path}, {rule_name}
	// are substituted when rendered.
	Template string

	// set_forced / set_default payload.
	TrackType string
	Language  string
	Value     bool

	// set_language payload.
	NewLanguage string
	FromPlugin  *PluginRef

	// set_container_metadata payload.
	Field string
	Text  string
}

func (a *RuleAction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var kind string
		if err := node.Decode(&kind); err != nil {
			return err
		}
		if !skipActionKinds[kind] {
			return fmt.Errorf("unknown rule action %q", kind)
		}
		*a = RuleAction{Kind: kind}
		return nil
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("rule action must be a string or a single-key mapping")
	}
	key := node.Content[0].Value
	payload := node.Content[1]

	switch key {
	case ActionWarn, ActionFail:
		var template string
		if err := payload.Decode(&template); err != nil {
			return err
		}
		*a = RuleAction{Kind: key, Template: template}

	case ActionSetForced, ActionSetDefault:
		var spec flagActionSpec
		if err := payload.Decode(&spec); err != nil {
			return err
		}
		value := true
		if spec.Value != nil {
			value = *spec.Value
		}
		*a = RuleAction{Kind: key, TrackType: spec.TrackType, Language: spec.Language, Value: value}

	case ActionSetLanguage:
		var spec languageActionSpec
		if err := payload.Decode(&spec); err != nil {
			return err
		}
		*a = RuleAction{
			Kind:        key,
			TrackType:   spec.TrackType,
			NewLanguage: spec.Language,
			FromPlugin:  spec.FromPluginMetadata,
		}

	case ActionSetContainerMetadata:
		var spec metadataActionSpec
		if err := payload.Decode(&spec); err != nil {
			return err
		}
		text := ""
		if spec.Value != nil {
			text = *spec.Value
		}
		*a = RuleAction{Kind: key, Field: spec.Field, Text: text, FromPlugin: spec.FromPluginMetadata}

	default:
		return fmt.Errorf("unknown rule action %q", key)
	}
	return nil
}

func (a RuleAction) MarshalYAML() (any, error) {
	switch a.Kind {
	case ActionSkipVideoTranscode, ActionSkipAudioTranscode, ActionSkipTrackFilter:
		return a.Kind, nil
	case ActionWarn, ActionFail:
		return map[string]string{a.Kind: a.Template}, nil
	case ActionSetForced, ActionSetDefault:
		spec := map[string]any{"track_type": a.TrackType, "value": a.Value}
		if a.Language != "" {
			spec["language"] = a.Language
		}
		return map[string]any{a.Kind: spec}, nil
	case ActionSetLanguage:
		spec := map[string]any{"track_type": a.TrackType}
		if a.FromPlugin != nil {
			spec["from_plugin_metadata"] = a.FromPlugin
		} else {
			spec["language"] = a.NewLanguage
		}
		return map[string]any{a.Kind: spec}, nil
	case ActionSetContainerMetadata:
		spec := map[string]any{"field": a.Field}
		if a.FromPlugin != nil {
			spec["from_plugin_metadata"] = a.FromPlugin
		} else {
			spec["value"] = a.Text
		}
		return map[string]any{a.Kind: spec}, nil
	default:
		return nil, fmt.Errorf("unknown rule action %q", a.Kind)
	}
}

// validate rejects payload combinations the evaluator cannot execute.
func (a RuleAction) validate() error {
	switch a.Kind {
	case ActionSkipVideoTranscode, ActionSkipAudioTranscode, ActionSkipTrackFilter:
		return nil
	case ActionWarn, ActionFail:
		if a.Template == "" {
			return fmt.Errorf("%s requires a message template", a.Kind)
		}
	case ActionSetForced, ActionSetDefault:
		if a.TrackType == "" {
			return fmt.Errorf("%s requires track_type", a.Kind)
		}
	case ActionSetLanguage:
		if a.TrackType == "" {
			return fmt.Errorf("set_language requires track_type")
		}
		if a.NewLanguage == "" && a.FromPlugin == nil {
			return fmt.Errorf("set_language requires language or from_plugin_metadata")
		}
	case ActionSetContainerMetadata:
		if a.Field == "" {
			return fmt.Errorf("set_container_metadata requires field")
		}
	default:
		return fmt.Errorf("unknown rule action %q", a.Kind)
	}
	return nil
}
