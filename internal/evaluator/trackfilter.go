package evaluator

import (
	"fmt"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// runTrackFilter computes the surviving set per the phase's filters and
// emits REMOVE_TRACK actions for the complement.
func (ev *evaluation) runTrackFilter(phase *policy.Phase) error {
	if phase.AudioFilter != nil {
		if err := ev.filterAudio(phase.AudioFilter); err != nil {
			return err
		}
	}
	if phase.SubtitleFilter != nil {
		ev.filterSubtitles(phase.SubtitleFilter)
	}
	if phase.AttachmentFilter != nil && phase.AttachmentFilter.RemoveAll {
		for _, t := range ev.surviving() {
			if t.Kind == domain.TrackAttachment {
				ev.emitRemove(t.Index)
			}
		}
	}
	return nil
}

// filterAudio keeps tracks whose language is wanted, exempts classified
// music/sfx/non-speech tracks per policy flags, and applies the declared
// fallback when the survivors would drop below the minimum.
func (ev *evaluation) filterAudio(filter *policy.AudioFilter) error {
	audio := ev.survivingOfKind(domain.TrackAudio)
	if len(audio) == 0 {
		return nil
	}

	wanted := func(t domain.Track) bool {
		for _, lang := range filter.Languages {
			if strings.EqualFold(t.Language, lang) {
				return true
			}
		}
		return false
	}

	var keep []domain.Track
	var exempt []domain.Track
	var drop []domain.Track
	for _, t := range audio {
		switch {
		case ev.classificationExempt(t, filter):
			exempt = append(exempt, t)
		case wanted(t):
			keep = append(keep, t)
		default:
			drop = append(drop, t)
		}
	}

	minimum := filter.EffectiveMinimum()
	if len(keep)+len(exempt) < minimum {
		switch filter.Fallback {
		case "keep_all", "":
			// Filtering would leave too few tracks: keep everything.
			ev.warn("audio filter kept all tracks: only %d of minimum %d matched languages [%s]",
				len(keep)+len(exempt), minimum, strings.Join(filter.Languages, ", "))
			return nil

		case "content_language":
			original, ok := ev.analyses.OriginalLanguage()
			if ok {
				var stillDrop []domain.Track
				for _, t := range drop {
					if strings.EqualFold(t.Language, original) {
						keep = append(keep, t)
					} else {
						stillDrop = append(stillDrop, t)
					}
				}
				drop = stillDrop
			}
			if len(keep)+len(exempt) < minimum {
				// Original language unavailable or still short: keep all.
				ev.warn("audio filter kept all tracks: content-language fallback could not reach minimum %d", minimum)
				return nil
			}

		case "keep_first":
			for len(keep)+len(exempt) < minimum && len(drop) > 0 {
				keep = append(keep, drop[0])
				drop = drop[1:]
			}

		case "error":
			return fmt.Errorf("%w: audio filter would leave %d track(s), minimum is %d",
				domain.ErrPreflight, len(keep)+len(exempt), minimum)
		}
	}

	for _, t := range drop {
		ev.emitRemove(t.Index)
	}
	return nil
}

// classificationExempt reports whether a track bypasses the language
// filter because the classification analysis marked it music, sfx, or
// non-speech and the policy keeps that class.
func (ev *evaluation) classificationExempt(t domain.Track, filter *policy.AudioFilter) bool {
	la, ok := ev.analyses.Language[t.Index]
	if !ok {
		return false
	}
	switch la.Classification {
	case "music":
		return filter.KeepMusic()
	case "sfx":
		return filter.KeepSFX()
	case "non_speech":
		return filter.KeepNonSpeech()
	default:
		return false
	}
}

func (ev *evaluation) filterSubtitles(filter *policy.SubtitleFilter) {
	for _, t := range ev.survivingOfKind(domain.TrackSubtitle) {
		if filter.RemoveAll {
			ev.emitRemove(t.Index)
			continue
		}
		if filter.PreserveForced && t.Forced {
			continue
		}
		if len(filter.Languages) == 0 {
			continue
		}
		wanted := false
		for _, lang := range filter.Languages {
			if strings.EqualFold(t.Language, lang) {
				wanted = true
				break
			}
		}
		if !wanted {
			ev.emitRemove(t.Index)
		}
	}
}

func (ev *evaluation) survivingOfKind(kind domain.TrackKind) []domain.Track {
	var out []domain.Track
	for _, t := range ev.surviving() {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (ev *evaluation) emitRemove(index int) {
	if ev.removed[index] {
		return
	}
	ev.removed[index] = true
	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:       domain.ActionRemoveTrack,
		TrackIndex: index,
	})
}
