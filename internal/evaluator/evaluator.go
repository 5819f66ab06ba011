package evaluator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// Evaluate deterministically computes a Plan from a policy and a file's
// probed state. It is pure over its inputs: byte-identical inputs produce
// a byte-identical Plan.
func Evaluate(pol *policy.Policy, file domain.FileInfo, analyses domain.AnalysisSet) (domain.Plan, error) {
	ev := &evaluation{
		policy:   pol,
		file:     file,
		analyses: analyses,
		tracks:   cloneTracks(file.Tracks),
		tags:     cloneTags(file.Tags),
		removed:  make(map[int]bool),
		plan: domain.Plan{
			FilePath:        file.Path,
			SourceContainer: file.Container,
		},
	}

	for pi := range pol.Phases {
		phase := &pol.Phases[pi]
		if err := ev.runPhase(phase); err != nil {
			return domain.Plan{}, err
		}
	}

	ev.consumeSkipFlags()

	// A timestamp action with nothing to accompany it is a no-op run;
	// drop it so the plan reads empty and the executor never launches.
	onlyTimestamps := true
	for _, a := range ev.plan.Actions {
		if a.Kind != domain.ActionSetFileMTime {
			onlyTimestamps = false
			break
		}
	}
	if onlyTimestamps {
		hasRelease := false
		for _, a := range ev.plan.Actions {
			if a.DesiredValue == "release_date" {
				hasRelease = true
			}
		}
		if !hasRelease {
			ev.plan.Actions = nil
		}
	}

	return ev.plan, nil
}

// evaluation carries the working state through the phase loop. The track
// slice is a working copy whose flags are updated as actions are emitted,
// so later operations see the planned state and no-op actions are elided.
type evaluation struct {
	policy   *policy.Policy
	file     domain.FileInfo
	analyses domain.AnalysisSet
	tracks   []domain.Track
	tags     map[string]string
	removed  map[int]bool
	plan     domain.Plan
}

func (ev *evaluation) ctx() condContext {
	return condContext{tracks: ev.surviving(), tags: ev.tags, analyses: ev.analyses}
}

// surviving returns the working tracks not scheduled for removal, in
// index order.
func (ev *evaluation) surviving() []domain.Track {
	out := make([]domain.Track, 0, len(ev.tracks))
	for _, t := range ev.tracks {
		if !ev.removed[t.Index] {
			out = append(out, t)
		}
	}
	return out
}

// runPhase executes one phase in the fixed sub-order: conditional rules,
// pre-processing actions and track filters, container metadata, synthesis,
// transcode, file timestamp.
func (ev *evaluation) runPhase(phase *policy.Phase) error {
	if phase.SkipWhen != nil {
		if reason := ev.evalSkipWhen(phase.SkipWhen); reason != nil {
			reason.Phase = phase.Name
			ev.plan.Skipped = append(ev.plan.Skipped, *reason)
			return nil
		}
	}

	if phase.Rules != nil {
		if err := ev.runRules(phase); err != nil {
			return err
		}
	}

	ev.runPreActions(phase.AudioActions, domain.TrackAudio)
	ev.runPreActions(phase.SubtitleActions, domain.TrackSubtitle)

	if err := ev.runTrackFilter(phase); err != nil {
		return err
	}

	if phase.DefaultFlags != nil {
		ev.normalizeDefaults(phase.DefaultFlags)
	}

	if phase.Container != nil {
		if err := ev.planContainerConversion(phase.Container); err != nil {
			return err
		}
	}

	ev.planContainerMetadata(phase.ContainerMetadata)

	if err := ev.planSynthesis(phase.Synthesis); err != nil {
		return err
	}

	if phase.Transcode != nil {
		ev.planTranscode(phase.Transcode)
	}

	if phase.FileTimestamp != nil {
		ev.planFileTimestamp(phase.FileTimestamp)
	}

	return nil
}

// runPreActions emits the clear_all_* cleanup actions for one track kind.
func (ev *evaluation) runPreActions(actions *policy.TrackActions, kind domain.TrackKind) {
	if actions == nil {
		return
	}
	for i := range ev.tracks {
		t := &ev.tracks[i]
		if t.Kind != kind || ev.removed[t.Index] {
			continue
		}
		if actions.ClearAllForced && t.Forced {
			ev.emitFlag(t, domain.ActionClearForced)
		}
		if actions.ClearAllDefault && t.Default {
			ev.emitFlag(t, domain.ActionClearDefault)
		}
		if actions.ClearAllTitles && t.Title != "" {
			ev.emitTitle(t, "")
		}
	}
}

// emitFlag appends a flag mutation and updates the working copy. A
// transition whose current value already equals the desired one is elided.
func (ev *evaluation) emitFlag(t *domain.Track, kind domain.ActionKind) {
	current, desired := "false", "true"
	switch kind {
	case domain.ActionSetDefault:
		current, desired = boolStr(t.Default), "true"
		t.Default = true
	case domain.ActionClearDefault:
		current, desired = boolStr(t.Default), "false"
		t.Default = false
	case domain.ActionSetForced:
		current, desired = boolStr(t.Forced), "true"
		t.Forced = true
	case domain.ActionClearForced:
		current, desired = boolStr(t.Forced), "false"
		t.Forced = false
	}
	if current == desired {
		return
	}
	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:         kind,
		TrackIndex:   t.Index,
		CurrentValue: current,
		DesiredValue: desired,
	})
}

func (ev *evaluation) emitTitle(t *domain.Track, title string) {
	if t.Title == title {
		return
	}
	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:         domain.ActionSetTitle,
		TrackIndex:   t.Index,
		CurrentValue: t.Title,
		DesiredValue: title,
	})
	t.Title = title
}

func (ev *evaluation) emitLanguage(t *domain.Track, language string) {
	if strings.EqualFold(t.Language, language) {
		return
	}
	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:         domain.ActionSetLanguage,
		TrackIndex:   t.Index,
		CurrentValue: t.Language,
		DesiredValue: language,
	})
	t.Language = language
}

// emitContainerMetadata records a container-tag update; the field name
// travels in CurrentValue and the desired text in DesiredValue, empty
// string deleting the tag.
func (ev *evaluation) emitContainerMetadata(field, value string) {
	key := strings.ToLower(field)
	if current, ok := ev.tags[key]; ok && current == value {
		return
	}
	if _, ok := ev.tags[key]; !ok && value == "" {
		return
	}
	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:         domain.ActionSetContainerMetadata,
		CurrentValue: key,
		DesiredValue: value,
	})
	if value == "" {
		delete(ev.tags, key)
	} else {
		ev.tags[key] = value
	}
}

func (ev *evaluation) warn(format string, args ...any) {
	ev.plan.Warnings = append(ev.plan.Warnings, fmt.Sprintf(format, args...))
}

// planContainerMetadata applies a phase's static container_metadata map
// in sorted key order for determinism.
func (ev *evaluation) planContainerMetadata(updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.emitContainerMetadata(k, updates[k])
	}
}

// planFileTimestamp emits the SET_FILE_MTIME action for the phase.
func (ev *evaluation) planFileTimestamp(cfg *policy.FileTimestamp) {
	action := domain.PlannedAction{Kind: domain.ActionSetFileMTime}
	switch cfg.EffectiveMode() {
	case "preserve":
		action.MTime = ev.file.ModTime
		action.DesiredValue = "preserve"
	case "now":
		// Leave the OS-set mtime; nothing to plan.
		return
	case "release_date":
		date, ok := ev.releaseDate(cfg.DateSource)
		if !ok {
			switch cfg.EffectiveFallback() {
			case "preserve":
				action.MTime = ev.file.ModTime
				action.DesiredValue = "preserve"
			case "now", "skip":
				return
			}
		} else {
			// A file already carrying the release date needs nothing; this
			// keeps re-evaluation after a successful run empty.
			if date.Equal(ev.file.ModTime.Truncate(time.Second)) || date.Equal(ev.file.ModTime) {
				return
			}
			action.MTime = date
			action.DesiredValue = "release_date"
		}
	}
	ev.plan.Actions = append(ev.plan.Actions, action)
}

// consumeSkipFlags drops actions suppressed by skip flags accumulated by
// conditional rules in any phase.
func (ev *evaluation) consumeSkipFlags() {
	if !ev.plan.SkipVideoTranscode && !ev.plan.SkipAudioTranscode && !ev.plan.SkipTrackFilter {
		return
	}
	kept := ev.plan.Actions[:0]
	for _, a := range ev.plan.Actions {
		switch {
		case ev.plan.SkipVideoTranscode && a.Kind == domain.ActionTranscodeVideo:
			continue
		case ev.plan.SkipAudioTranscode && a.Kind == domain.ActionTranscodeAudio:
			continue
		case ev.plan.SkipTrackFilter && a.Kind == domain.ActionRemoveTrack:
			continue
		}
		kept = append(kept, a)
	}
	ev.plan.Actions = kept

	// COPY_STREAM decisions exist to accompany a rewrite; if the skip
	// flags removed every rewrite, the copies are orphans.
	rewriteLeft := false
	for _, a := range ev.plan.Actions {
		switch a.Kind {
		case domain.ActionTranscodeVideo, domain.ActionTranscodeAudio,
			domain.ActionRemoveTrack, domain.ActionReorder,
			domain.ActionRemuxTo, domain.ActionSynthesizeAudio:
			rewriteLeft = true
		}
	}
	if !rewriteLeft {
		kept = ev.plan.Actions[:0]
		for _, a := range ev.plan.Actions {
			if a.Kind != domain.ActionCopyStream {
				kept = append(kept, a)
			}
		}
		ev.plan.Actions = kept
	}
}

func cloneTracks(tracks []domain.Track) []domain.Track {
	out := make([]domain.Track, len(tracks))
	copy(out, tracks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[strings.ToLower(k)] = v
	}
	return out
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
