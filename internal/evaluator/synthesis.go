package evaluator

import (
	"fmt"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// planSynthesis evaluates each synthesis definition in source order.
func (ev *evaluation) planSynthesis(defs []policy.SynthesisDef) error {
	for di := range defs {
		if err := ev.planOneSynthesis(&defs[di]); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluation) planOneSynthesis(def *policy.SynthesisDef) error {
	if def.CreateIf != nil {
		ok, err := evalCondition(def.CreateIf, ev.ctx())
		if err != nil {
			return fmt.Errorf("%w: synthesis %q create_if: %v", domain.ErrConfig, def.Name, err)
		}
		if !ok {
			return nil
		}
	}

	if def.SkipIfExists != nil {
		pred, err := filterPredicate(def.SkipIfExists.TrackFilterSpec, ev.ctx())
		if err != nil {
			return fmt.Errorf("%w: synthesis %q skip_if_exists: %v", domain.ErrConfig, def.Name, err)
		}
		for _, t := range ev.survivingOfKind(domain.TrackKind(def.SkipIfExists.TrackType)) {
			if pred(t) {
				return nil
			}
		}
	}

	source, ok := ev.pickSynthesisSource(def)
	if !ok {
		ev.warn("synthesis %q dropped: no surviving audio source track", def.Name)
		return nil
	}

	spec := domain.SynthesisSpec{
		Name:        def.Name,
		SourceIndex: source.Index,
		Codec:       def.Codec,
		Channels:    def.Channels,
		Bitrate:     def.Bitrate,
		Position:    def.Position,
	}

	if source.Channels > def.Channels {
		spec.DownmixFilter = downmixFilter(def.Channels)
	}

	switch def.Title {
	case "", "inherit":
		spec.Title = source.Title
	default:
		spec.Title = def.Title
	}
	switch def.Language {
	case "", "inherit":
		spec.Language = source.Language
	default:
		spec.Language = def.Language
	}

	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:      domain.ActionSynthesizeAudio,
		Synthesis: &spec,
	})
	return nil
}

// pickSynthesisSource scores the surviving audio tracks by the declared
// preferences and returns the best candidate. When no criterion matches
// anything the first audio track wins at score zero. A source already
// scheduled for removal by the filter is never chosen: the filter wins,
// and when no audio track survives the caller drops the synthesis.
func (ev *evaluation) pickSynthesisSource(def *policy.SynthesisDef) (domain.Track, bool) {
	candidates := ev.survivingOfKind(domain.TrackAudio)
	if len(candidates) == 0 {
		return domain.Track{}, false
	}

	best := candidates[0]
	bestScore := 0
	for i, t := range candidates {
		score := 0
		for _, pref := range def.SourcePreferences {
			if len(pref.Language) > 0 && containsFold(pref.Language, t.Language) {
				score += 100
			}
			if pref.NotCommentary && !isCommentary(t, ev.analyses) {
				score += 80
			}
			if pref.Channels != nil {
				switch {
				case pref.Channels.Max:
					score += 10 * t.Channels
				case pref.Channels.Min:
					score -= 10 * t.Channels
				case pref.Channels.Exact > 0 && t.Channels == pref.Channels.Exact:
					score += 10 * t.Channels
				}
			}
			if len(pref.Codec) > 0 {
				for _, pattern := range pref.Codec {
					if domain.AudioCodecMatches(t.Codec, pattern) {
						score += 20
						break
					}
				}
			}
		}
		if i == 0 || score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, true
}

// downmixFilter builds the pan/aformat filter for reducing channel count.
func downmixFilter(targetChannels int) string {
	switch targetChannels {
	case 1:
		return "pan=mono|c0=0.5*FL+0.5*FR"
	case 2:
		return "pan=stereo|FL=0.5*FC+0.707*FL+0.707*BL+0.5*LFE|FR=0.5*FC+0.707*FR+0.707*BR+0.5*LFE"
	case 6:
		return "aformat=channel_layouts=5.1"
	default:
		return fmt.Sprintf("aformat=channel_layouts=%dc", targetChannels)
	}
}

// planContainerConversion emits REMUX_TO when the file is not already in
// the target container, honoring the incompatible-codec mode.
func (ev *evaluation) planContainerConversion(cfg *policy.ContainerConversion) error {
	target := domain.NormalizeContainer(cfg.Target)
	if domain.NormalizeContainer(ev.file.Container) == target {
		return nil
	}

	var incompatible []domain.IncompatibleStream
	for _, t := range ev.surviving() {
		if t.Kind == domain.TrackAttachment || t.Codec == "" {
			continue
		}
		if !domain.CodecCompatibleWithContainer(t.Codec, target) {
			incompatible = append(incompatible, domain.IncompatibleStream{Index: t.Index, Codec: t.Codec})
		}
	}

	if len(incompatible) > 0 {
		mode := cfg.OnIncompatibleCodec
		if mode == "" {
			mode = "error"
		}
		switch mode {
		case "error":
			return &domain.IncompatibleCodecError{Container: target, Streams: incompatible}
		case "skip":
			names := make([]string, len(incompatible))
			for i, s := range incompatible {
				names[i] = fmt.Sprintf("stream %d (%s)", s.Index, s.Codec)
			}
			ev.warn("container conversion to %s skipped: incompatible codecs: %s",
				target, strings.Join(names, ", "))
			return nil
		case "transcode":
			// Incompatible subtitle streams cannot be carried; drop them
			// with a warning. Audio/video incompatibilities are resolved by
			// the transcode planner running later in the phase.
			for _, s := range incompatible {
				if t, ok := ev.workingTrack(s.Index); ok && t.Kind == domain.TrackSubtitle {
					ev.warn("subtitle stream %d (%s) dropped: incompatible with %s", s.Index, s.Codec, target)
					ev.emitRemove(s.Index)
				}
			}
		}
	}

	ev.plan.Actions = append(ev.plan.Actions, domain.PlannedAction{
		Kind:            domain.ActionRemuxTo,
		TargetContainer: target,
	})
	return nil
}
