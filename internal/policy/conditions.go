package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/randomparity/vpo/internal/policy/expr"
)

// StringList accepts either a scalar or a sequence in YAML and always
// normalizes to a list.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return err
	}
	*s = StringList(many)
	return nil
}

func (s StringList) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// IntOrCmp is an integer criterion: a bare int means equality, a map form
// carries an explicit operator (eq, lt, lte, gt, gte).
type IntOrCmp struct {
	Operator string `yaml:"operator"`
	Value    int    `yaml:"value"`
}

func (c *IntOrCmp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var n int
		if err := node.Decode(&n); err != nil {
			return err
		}
		*c = IntOrCmp{Operator: "eq", Value: n}
		return nil
	}
	type raw IntOrCmp
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	if r.Operator == "" {
		r.Operator = "eq"
	}
	*c = IntOrCmp(r)
	return nil
}

func (c IntOrCmp) MarshalYAML() (any, error) {
	if c.Operator == "" || c.Operator == "eq" {
		return c.Value, nil
	}
	return map[string]any{"operator": c.Operator, "value": c.Value}, nil
}

// Matches applies the comparison against an observed value.
func (c IntOrCmp) Matches(observed int) bool {
	switch c.Operator {
	case "", "eq":
		return observed == c.Value
	case "lt":
		return observed < c.Value
	case "lte":
		return observed <= c.Value
	case "gt":
		return observed > c.Value
	case "gte":
		return observed >= c.Value
	default:
		return false
	}
}

// TitleMatch matches track titles by substring or regex. A scalar string
// is shorthand for a contains match.
type TitleMatch struct {
	Contains string `yaml:"contains,omitempty"`
	Regex    string `yaml:"regex,omitempty"`
}

func (t *TitleMatch) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*t = TitleMatch{Contains: s}
		return nil
	}
	type raw TitleMatch
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	*t = TitleMatch(r)
	return nil
}

func (t TitleMatch) MarshalYAML() (any, error) {
	if t.Regex == "" {
		return t.Contains, nil
	}
	return map[string]string{"regex": t.Regex}, nil
}

// TrackFilterSpec is the AND of its set criteria; nil criteria match any
// track.
type TrackFilterSpec struct {
	Language      StringList  `yaml:"language,omitempty"`
	Codec         StringList  `yaml:"codec,omitempty"`
	IsDefault     *bool       `yaml:"is_default,omitempty"`
	IsForced      *bool       `yaml:"is_forced,omitempty"`
	Channels      *IntOrCmp   `yaml:"channels,omitempty"`
	Width         *IntOrCmp   `yaml:"width,omitempty"`
	Height        *IntOrCmp   `yaml:"height,omitempty"`
	Title         *TitleMatch `yaml:"title,omitempty"`
	NotCommentary bool        `yaml:"not_commentary,omitempty"`
}

// TrackQuery names a track kind plus filter criteria.
type TrackQuery struct {
	TrackType       string `yaml:"track_type"`
	TrackFilterSpec `yaml:",inline"`
}

// CountQuery compares the number of matching tracks against a threshold.
type CountQuery struct {
	TrackQuery `yaml:",inline"`
	Operator   string `yaml:"operator"`
	Value      int    `yaml:"value"`
}

// PluginMetadataQuery checks one field of a plugin's metadata blob.
type PluginMetadataQuery struct {
	Plugin   string `yaml:"plugin"`
	Field    string `yaml:"field"`
	Operator string `yaml:"operator,omitempty"`
	Value    any    `yaml:"value,omitempty"`
}

// ContainerMetadataQuery checks one container-level tag.
type ContainerMetadataQuery struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator,omitempty"`
	Value    any    `yaml:"value,omitempty"`
}

// ClassificationQuery matches audio tracks classified as original or
// dubbed. A bare boolean is shorthand for {value: <bool>}.
type ClassificationQuery struct {
	Value         *bool   `yaml:"value,omitempty"`
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
	Language      string  `yaml:"language,omitempty"`
}

func (c *ClassificationQuery) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*c = ClassificationQuery{Value: &b}
		return nil
	}
	type raw ClassificationQuery
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	*c = ClassificationQuery(r)
	return nil
}

// Expected returns the classification the query looks for (default true).
func (c ClassificationQuery) Expected() bool {
	return c.Value == nil || *c.Value
}

// Confidence returns the minimum confidence (default 0.7).
func (c ClassificationQuery) Confidence() float64 {
	if c.MinConfidence <= 0 {
		return 0.7
	}
	return c.MinConfidence
}

// MultiLanguageQuery matches audio tracks whose detected language segments
// indicate more than one spoken language.
type MultiLanguageQuery struct {
	TrackIndex      *int    `yaml:"track_index,omitempty"`
	Threshold       float64 `yaml:"threshold,omitempty"`
	PrimaryLanguage string  `yaml:"primary_language,omitempty"`
}

// EffectiveThreshold is the minimum secondary-language fraction (default 5%).
func (q MultiLanguageQuery) EffectiveThreshold() float64 {
	if q.Threshold <= 0 {
		return 0.05
	}
	return q.Threshold
}

// Condition is the closed condition algebra. Exactly one member is set;
// a YAML scalar is an expression string compiled at load time.
type Condition struct {
	Expr     string    `yaml:"expr,omitempty"`
	Compiled expr.Expr `yaml:"-"`

	Exists               *TrackQuery             `yaml:"exists,omitempty"`
	Count                *CountQuery             `yaml:"count,omitempty"`
	And                  []*Condition            `yaml:"and,omitempty"`
	Or                   []*Condition            `yaml:"or,omitempty"`
	Not                  *Condition              `yaml:"not,omitempty"`
	PluginMetadata       *PluginMetadataQuery    `yaml:"plugin_metadata,omitempty"`
	ContainerMetadata    *ContainerMetadataQuery `yaml:"container_metadata,omitempty"`
	IsOriginal           *ClassificationQuery    `yaml:"is_original,omitempty"`
	IsDubbed             *ClassificationQuery    `yaml:"is_dubbed,omitempty"`
	AudioIsMultiLanguage *MultiLanguageQuery     `yaml:"audio_is_multi_language,omitempty"`
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		c.Expr = s
		return nil
	}
	type raw Condition
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	*c = Condition(r)
	return nil
}

func (c Condition) MarshalYAML() (any, error) {
	if c.Expr != "" {
		return c.Expr, nil
	}
	type raw Condition
	return raw(c), nil
}

// compile parses the expression form, if present, and recurses into
// combinators so every expression in the tree is checked at load time.
func (c *Condition) compile() error {
	if c == nil {
		return nil
	}
	if c.Expr != "" {
		compiled, err := expr.Parse(c.Expr)
		if err != nil {
			return fmt.Errorf("expression %q: %w", c.Expr, err)
		}
		c.Compiled = compiled
	}
	for _, sub := range c.And {
		if err := sub.compile(); err != nil {
			return err
		}
	}
	for _, sub := range c.Or {
		if err := sub.compile(); err != nil {
			return err
		}
	}
	if err := c.Not.compile(); err != nil {
		return err
	}
	return nil
}
