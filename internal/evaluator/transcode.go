package evaluator

import (
	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// planTranscode emits TRANSCODE_VIDEO when the source codec differs from
// the target (alias-aware: hevc and h265 match, h264 is distinct) and
// per-audio-track COPY_STREAM or TRANSCODE_AUDIO decisions, plus an
// optional extra downmix track. When nothing needs re-encoding the whole
// operation plans no actions, which keeps re-evaluation after a
// successful run empty.
func (ev *evaluation) planTranscode(cfg *policy.TranscodeConfig) {
	var actions []domain.PlannedAction
	needsWork := false

	if cfg.VideoCodec != "" {
		if video := ev.survivingOfKind(domain.TrackVideo); len(video) > 0 {
			t := video[0]
			if t.Codec != "" && !domain.VideoCodecMatches(t.Codec, cfg.VideoCodec) {
				actions = append(actions, domain.PlannedAction{
					Kind:          domain.ActionTranscodeVideo,
					TrackIndex:    t.Index,
					CurrentValue:  t.Codec,
					TargetCodec:   cfg.VideoCodec,
					TargetBitrate: cfg.VideoBitrate,
				})
				needsWork = true
			}
		}
	}

	audio := ev.survivingOfKind(domain.TrackAudio)
	for _, t := range audio {
		switch {
		case preserved(t.Codec, cfg.AudioPreserveCodecs),
			cfg.AudioCodec == "",
			domain.AudioCodecMatches(t.Codec, cfg.AudioCodec):
			actions = append(actions, domain.PlannedAction{
				Kind:       domain.ActionCopyStream,
				TrackIndex: t.Index,
			})
		default:
			actions = append(actions, domain.PlannedAction{
				Kind:          domain.ActionTranscodeAudio,
				TrackIndex:    t.Index,
				CurrentValue:  t.Codec,
				TargetCodec:   cfg.AudioCodec,
				TargetBitrate: cfg.AudioBitrate,
			})
			needsWork = true
		}
	}

	// Optional extra downmix fed from the highest-channel source. Only
	// planned when that source actually exceeds the downmix target, and
	// skipped when a track with the target layout already exists.
	if cfg.AudioDownmix != "" && len(audio) > 0 {
		source := audio[0]
		for _, t := range audio[1:] {
			if t.Channels > source.Channels {
				source = t
			}
		}
		targetChannels := 2
		if cfg.AudioDownmix == "5.1" {
			targetChannels = 6
		}
		alreadyPresent := false
		for _, t := range audio {
			if t.Channels == targetChannels {
				alreadyPresent = true
				break
			}
		}
		if source.Channels > targetChannels && !alreadyPresent {
			actions = append(actions, domain.PlannedAction{
				Kind:          domain.ActionTranscodeAudio,
				TrackIndex:    source.Index,
				CurrentValue:  source.Codec,
				TargetCodec:   cfg.AudioCodec,
				TargetBitrate: cfg.AudioBitrate,
				DesiredValue:  cfg.AudioDownmix,
			})
			needsWork = true
		}
	}

	// COPY_STREAM decisions only matter when a rewrite happens; an
	// all-copy plan is a no-op and emits nothing.
	if needsWork {
		ev.plan.Actions = append(ev.plan.Actions, actions...)
	}
}

func preserved(codec string, preserveList []string) bool {
	for _, pattern := range preserveList {
		if domain.AudioCodecMatches(codec, pattern) {
			return true
		}
	}
	return false
}
