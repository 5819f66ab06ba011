package evaluator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// runRules evaluates a phase's conditional rules. Mode "first" stops after
// the first matched rule; "all" evaluates every rule. Every evaluation is
// recorded on the Plan trace.
func (ev *evaluation) runRules(phase *policy.Phase) error {
	for ri := range phase.Rules.Rules {
		rule := &phase.Rules.Rules[ri]

		matched, err := evalCondition(&rule.When, ev.ctx())
		if err != nil {
			return fmt.Errorf("%w: rule %q: %v", domain.ErrConfig, rule.Name, err)
		}
		ev.plan.Trace = append(ev.plan.Trace, domain.RuleTrace{
			Phase:   phase.Name,
			Rule:    rule.Name,
			Matched: matched,
		})

		actions := rule.Else
		if matched {
			actions = rule.Then
		}
		for _, action := range actions {
			if err := ev.applyRuleAction(rule.Name, action); err != nil {
				return err
			}
		}

		if matched && phase.Rules.Mode == "first" {
			break
		}
	}
	return nil
}

func (ev *evaluation) applyRuleAction(ruleName string, action policy.RuleAction) error {
	switch action.Kind {
	case policy.ActionSkipVideoTranscode:
		ev.plan.SkipVideoTranscode = true
	case policy.ActionSkipAudioTranscode:
		ev.plan.SkipAudioTranscode = true
	case policy.ActionSkipTrackFilter:
		ev.plan.SkipTrackFilter = true

	case policy.ActionWarn:
		ev.plan.Warnings = append(ev.plan.Warnings, ev.renderTemplate(action.Template, ruleName))

	case policy.ActionFail:
		return &domain.ConditionalFailError{
			Rule:    ruleName,
			Message: ev.renderTemplate(action.Template, ruleName),
		}

	case policy.ActionSetForced:
		// set_forced applies to every matching track.
		for i := range ev.tracks {
			t := &ev.tracks[i]
			if !ev.ruleTargets(t, action) {
				continue
			}
			if action.Value {
				ev.emitFlag(t, domain.ActionSetForced)
			} else {
				ev.emitFlag(t, domain.ActionClearForced)
			}
		}

	case policy.ActionSetDefault:
		// set_default applies to at most one track: the first match.
		for i := range ev.tracks {
			t := &ev.tracks[i]
			if !ev.ruleTargets(t, action) {
				continue
			}
			if action.Value {
				ev.emitFlag(t, domain.ActionSetDefault)
			} else {
				ev.emitFlag(t, domain.ActionClearDefault)
			}
			break
		}

	case policy.ActionSetLanguage:
		language := action.NewLanguage
		if action.FromPlugin != nil {
			value, ok := ev.analyses.PluginField(action.FromPlugin.Plugin, action.FromPlugin.Field)
			if !ok {
				ev.warn("rule %q: set_language dropped, plugin field %s.%s absent",
					ruleName, action.FromPlugin.Plugin, action.FromPlugin.Field)
				return nil
			}
			s, ok := asString(value)
			if !ok {
				ev.warn("rule %q: set_language dropped, plugin field %s.%s is not a string",
					ruleName, action.FromPlugin.Plugin, action.FromPlugin.Field)
				return nil
			}
			language = domain.NormalizeLanguage(s)
		}
		for i := range ev.tracks {
			t := &ev.tracks[i]
			if t.Kind != domain.TrackKind(action.TrackType) || ev.removed[t.Index] {
				continue
			}
			ev.emitLanguage(t, language)
		}

	case policy.ActionSetContainerMetadata:
		text := action.Text
		if action.FromPlugin != nil {
			value, ok := ev.analyses.PluginField(action.FromPlugin.Plugin, action.FromPlugin.Field)
			if !ok {
				ev.warn("rule %q: set_container_metadata dropped, plugin field %s.%s absent",
					ruleName, action.FromPlugin.Plugin, action.FromPlugin.Field)
				return nil
			}
			s, _ := asString(value)
			text = s
		}
		ev.emitContainerMetadata(action.Field, text)
	}
	return nil
}

// ruleTargets reports whether a set_forced/set_default action addresses a
// working track.
func (ev *evaluation) ruleTargets(t *domain.Track, action policy.RuleAction) bool {
	if ev.removed[t.Index] {
		return false
	}
	if t.Kind != domain.TrackKind(action.TrackType) {
		return false
	}
	if action.Language != "" && !strings.EqualFold(t.Language, action.Language) {
		return false
	}
	return true
}

// renderTemplate substitutes the {filename}, {path}, and {rule_name}
// placeholders of warn/fail templates.
func (ev *evaluation) renderTemplate(template, ruleName string) string {
	r := strings.NewReplacer(
		"{filename}", filepath.Base(ev.file.Path),
		"{path}", ev.file.Path,
		"{rule_name}", ruleName,
	)
	return r.Replace(template)
}

// releaseDate pulls a release or air date from plugin metadata for the
// file-timestamp action. date_source "auto" scans plugins in name order.
func (ev *evaluation) releaseDate(source string) (time.Time, bool) {
	plugins := ev.analyses.PluginNames()
	if source != "" && source != "auto" {
		plugins = []string{source}
	}
	for _, plugin := range plugins {
		for _, field := range []string{"release_date", "air_date", "digital_release"} {
			value, ok := ev.analyses.PluginField(plugin, field)
			if !ok {
				continue
			}
			s, ok := asString(value)
			if !ok {
				continue
			}
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if parsed, err := time.Parse(layout, s); err == nil {
					return parsed.UTC(), true
				}
			}
		}
	}
	return time.Time{}, false
}
