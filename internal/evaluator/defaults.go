package evaluator

import (
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// normalizeDefaults computes the desired default flags over the surviving
// tracks and emits the flag transitions needed to reach them. After its
// actions apply, the chosen track of each normalized kind is default;
// other tracks of that kind lose the flag only when clear_other_defaults
// is on (the default).
func (ev *evaluation) normalizeDefaults(cfg *policy.DefaultFlags) {
	if cfg.FirstVideoDefault() {
		ev.normalizeKindDefault(domain.TrackVideo, func(tracks []domain.Track) int {
			if len(tracks) == 0 {
				return -1
			}
			return tracks[0].Index
		}, cfg.ClearOthers())
	}

	var defaultAudioLang string
	if cfg.PreferredAudioDefault() {
		chosen := ev.normalizeKindDefault(domain.TrackAudio, func(tracks []domain.Track) int {
			return pickPreferred(tracks, cfg.AudioLanguagePreference)
		}, cfg.ClearOthers())
		if t, ok := ev.workingTrack(chosen); ok {
			defaultAudioLang = t.Language
		}
	}

	if cfg.SetPreferredSubtitleDefault {
		ev.normalizeKindDefault(domain.TrackSubtitle, func(tracks []domain.Track) int {
			return pickPreferred(tracks, cfg.SubtitleLanguagePreference)
		}, cfg.ClearOthers())
	}

	// Foreign-audio assist: when the chosen default audio is not the
	// preferred listener language, force the preferred subtitle so it
	// renders automatically.
	if cfg.SetSubtitleForcedWhenAudioDiffers && len(cfg.AudioLanguagePreference) > 0 {
		preferred := cfg.AudioLanguagePreference[0]
		if defaultAudioLang != "" && !strings.EqualFold(defaultAudioLang, preferred) {
			subs := ev.survivingOfKind(domain.TrackSubtitle)
			langs := cfg.SubtitleLanguagePreference
			if len(langs) == 0 {
				langs = cfg.AudioLanguagePreference
			}
			if idx := pickPreferred(subs, langs); idx >= 0 {
				if t := ev.workingTrackPtr(idx); t != nil {
					ev.emitFlag(t, domain.ActionSetForced)
				}
			}
		}
	}
}

// normalizeKindDefault makes exactly the chosen track default for a kind,
// clearing the flag elsewhere when requested. Returns the chosen index,
// or -1 when the kind has no surviving tracks.
func (ev *evaluation) normalizeKindDefault(kind domain.TrackKind, choose func([]domain.Track) int, clearOthers bool) int {
	tracks := ev.survivingOfKind(kind)
	if len(tracks) == 0 {
		return -1
	}
	chosen := choose(tracks)
	if chosen < 0 {
		chosen = tracks[0].Index
	}

	for _, t := range tracks {
		ptr := ev.workingTrackPtr(t.Index)
		if ptr == nil {
			continue
		}
		if t.Index == chosen {
			ev.emitFlag(ptr, domain.ActionSetDefault)
		} else if clearOthers && ptr.Default {
			ev.emitFlag(ptr, domain.ActionClearDefault)
		}
	}
	return chosen
}

// pickPreferred returns the index of the first track matching the
// preference list, walking preferences in order; -1 when nothing matches.
func pickPreferred(tracks []domain.Track, preferences []string) int {
	for _, lang := range preferences {
		for _, t := range tracks {
			if strings.EqualFold(t.Language, lang) {
				return t.Index
			}
		}
	}
	return -1
}

func (ev *evaluation) workingTrack(index int) (domain.Track, bool) {
	if index < 0 {
		return domain.Track{}, false
	}
	for _, t := range ev.tracks {
		if t.Index == index {
			return t, true
		}
	}
	return domain.Track{}, false
}

func (ev *evaluation) workingTrackPtr(index int) *domain.Track {
	if index < 0 {
		return nil
	}
	for i := range ev.tracks {
		if ev.tracks[i].Index == index {
			return &ev.tracks[i]
		}
	}
	return nil
}
