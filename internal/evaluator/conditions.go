package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// condContext is what a condition sees: the working track set, container
// tags, and the side-channel analyses.
type condContext struct {
	tracks   []domain.Track
	tags     map[string]string
	analyses domain.AnalysisSet
}

// evalCondition resolves one structured condition (or its compiled
// expression form) to a boolean.
func evalCondition(c *policy.Condition, ctx condContext) (bool, error) {
	if c == nil {
		return true, nil
	}

	switch {
	case c.Compiled != nil:
		return evalExprBool(c.Compiled, ctx)

	case c.Exists != nil:
		pred, err := filterPredicate(c.Exists.TrackFilterSpec, ctx)
		if err != nil {
			return false, err
		}
		for _, t := range tracksOfType(ctx.tracks, c.Exists.TrackType) {
			if pred(t) {
				return true, nil
			}
		}
		return false, nil

	case c.Count != nil:
		pred, err := filterPredicate(c.Count.TrackFilterSpec, ctx)
		if err != nil {
			return false, err
		}
		count := 0
		for _, t := range tracksOfType(ctx.tracks, c.Count.TrackType) {
			if pred(t) {
				count++
			}
		}
		op := c.Count.Operator
		if op == "" {
			op = "eq"
		}
		return policy.IntOrCmp{Operator: op, Value: c.Count.Value}.Matches(count), nil

	case len(c.And) > 0:
		for _, sub := range c.And {
			ok, err := evalCondition(sub, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case len(c.Or) > 0:
		for _, sub := range c.Or {
			ok, err := evalCondition(sub, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case c.Not != nil:
		ok, err := evalCondition(c.Not, ctx)
		return !ok, err

	case c.PluginMetadata != nil:
		q := c.PluginMetadata
		value, present := ctx.analyses.PluginField(q.Plugin, q.Field)
		return compareMetadata(value, present, q.Operator, q.Value)

	case c.ContainerMetadata != nil:
		q := c.ContainerMetadata
		value, present := ctx.tags[strings.ToLower(q.Field)]
		return compareMetadata(value, present, q.Operator, q.Value)

	case c.IsOriginal != nil:
		return evalClassification(*c.IsOriginal, true, ctx), nil

	case c.IsDubbed != nil:
		return evalClassification(*c.IsDubbed, false, ctx), nil

	case c.AudioIsMultiLanguage != nil:
		return evalMultiLanguage(*c.AudioIsMultiLanguage, ctx), nil

	default:
		// An empty condition matches nothing rather than everything, so a
		// half-written rule cannot silently fire on every file.
		return false, nil
	}
}

func tracksOfType(tracks []domain.Track, trackType string) []domain.Track {
	kind := domain.TrackKind(strings.ToLower(strings.TrimSpace(trackType)))
	var out []domain.Track
	for _, t := range tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// filterPredicate compiles a TrackFilterSpec into a match function. All
// set criteria must match.
func filterPredicate(spec policy.TrackFilterSpec, ctx condContext) (func(domain.Track) bool, error) {
	var titleRe *regexp.Regexp
	if spec.Title != nil && spec.Title.Regex != "" {
		re, err := regexp.Compile(spec.Title.Regex)
		if err != nil {
			return nil, fmt.Errorf("title regex %q: %w", spec.Title.Regex, err)
		}
		titleRe = re
	}

	return func(t domain.Track) bool {
		if len(spec.Language) > 0 && !containsFold(spec.Language, t.Language) {
			return false
		}
		if len(spec.Codec) > 0 {
			matched := false
			for _, pattern := range spec.Codec {
				if domain.AudioCodecMatches(t.Codec, pattern) || domain.VideoCodecMatches(t.Codec, pattern) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		if spec.IsDefault != nil && t.Default != *spec.IsDefault {
			return false
		}
		if spec.IsForced != nil && t.Forced != *spec.IsForced {
			return false
		}
		if spec.Channels != nil && !spec.Channels.Matches(t.Channels) {
			return false
		}
		if spec.Width != nil && !spec.Width.Matches(t.Width) {
			return false
		}
		if spec.Height != nil && !spec.Height.Matches(t.Height) {
			return false
		}
		if spec.Title != nil {
			if titleRe != nil {
				if !titleRe.MatchString(t.Title) {
					return false
				}
			} else if !strings.Contains(strings.ToLower(t.Title), strings.ToLower(spec.Title.Contains)) {
				return false
			}
		}
		if spec.NotCommentary && isCommentary(t, ctx.analyses) {
			return false
		}
		return true
	}, nil
}

func containsFold(list policy.StringList, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// isCommentary consults the classification analysis first and falls back
// to the track title.
func isCommentary(t domain.Track, analyses domain.AnalysisSet) bool {
	if la, ok := analyses.Language[t.Index]; ok && la.IsCommentary {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), "commentary")
}

func evalClassification(q policy.ClassificationQuery, wantOriginal bool, ctx condContext) bool {
	for _, t := range tracksOfType(ctx.tracks, "audio") {
		la, ok := ctx.analyses.Language[t.Index]
		if !ok || la.Confidence < q.Confidence() {
			continue
		}
		if q.Language != "" && !strings.EqualFold(la.Language, q.Language) {
			continue
		}
		classified := la.IsOriginal
		if !wantOriginal {
			classified = !la.IsOriginal
		}
		if classified == q.Expected() {
			return true
		}
	}
	return false
}

func evalMultiLanguage(q policy.MultiLanguageQuery, ctx condContext) bool {
	threshold := q.EffectiveThreshold()
	for _, t := range tracksOfType(ctx.tracks, "audio") {
		if q.TrackIndex != nil && t.Index != *q.TrackIndex {
			continue
		}
		segments := ctx.analyses.Segments[t.Index]
		if len(segments) == 0 {
			continue
		}
		primary, secondaryFraction := segmentBreakdown(segments)
		if q.PrimaryLanguage != "" && !strings.EqualFold(primary, q.PrimaryLanguage) {
			continue
		}
		if secondaryFraction >= threshold {
			return true
		}
	}
	return false
}

// segmentBreakdown returns the dominant language and the combined
// fraction of every other language.
func segmentBreakdown(segments []domain.LanguageSegment) (string, float64) {
	byLang := make(map[string]float64)
	total := 0.0
	for _, s := range segments {
		byLang[s.Language] += s.Fraction
		total += s.Fraction
	}
	if total <= 0 {
		return "", 0
	}
	primary := ""
	best := -1.0
	for lang, fraction := range byLang {
		if fraction > best || (fraction == best && lang < primary) {
			primary, best = lang, fraction
		}
	}
	return primary, (total - best) / total
}

// compareMetadata implements the shared operator set for plugin and
// container metadata. Numeric operators require numeric values.
func compareMetadata(value any, present bool, operator string, expected any) (bool, error) {
	if operator == "" {
		operator = "eq"
	}
	if operator == "exists" {
		return present, nil
	}
	if !present {
		return false, nil
	}

	switch operator {
	case "eq":
		return metadataEqual(value, expected), nil
	case "neq":
		return !metadataEqual(value, expected), nil
	case "contains":
		vs, ok1 := asString(value)
		es, ok2 := asString(expected)
		if !ok1 || !ok2 {
			return false, nil
		}
		return strings.Contains(strings.ToLower(vs), strings.ToLower(es)), nil
	case "lt", "lte", "gt", "gte":
		vn, ok1 := asNumber(value)
		en, ok2 := asNumber(expected)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("operator %s requires numeric values", operator)
		}
		switch operator {
		case "lt":
			return vn < en, nil
		case "lte":
			return vn <= en, nil
		case "gt":
			return vn > en, nil
		default:
			return vn >= en, nil
		}
	default:
		return false, fmt.Errorf("unknown metadata operator %q", operator)
	}
}

func metadataEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
	}
	as, ok1 := asString(a)
	bs, ok2 := asString(b)
	if ok1 && ok2 {
		return strings.EqualFold(as, bs)
	}
	return a == b
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
