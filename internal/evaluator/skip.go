package evaluator

import (
	"fmt"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
)

// evalSkipWhen checks a phase's skip_when disjunction; the first matching
// predicate wins and the phase is skipped with its reason recorded.
func (ev *evaluation) evalSkipWhen(cond *policy.SkipWhen) *domain.SkipRecord {
	video, hasVideo := ev.file.VideoTrack()

	if len(cond.VideoCodec) > 0 && hasVideo && video.Codec != "" {
		for _, target := range cond.VideoCodec {
			if domain.VideoCodecMatches(video.Codec, target) {
				return &domain.SkipRecord{
					Condition: "video_codec",
					Value:     video.Codec,
					Message:   fmt.Sprintf("video_codec matches [%s]", strings.Join(cond.VideoCodec, ", ")),
				}
			}
		}
	}

	// Unlike the video predicate, audio_codec_exists compares codec names
	// exactly (after normalization); no alias groups are consulted.
	if cond.AudioCodecExists != "" {
		target := strings.ToLower(strings.TrimSpace(cond.AudioCodecExists))
		for _, t := range ev.file.TracksOfKind(domain.TrackAudio) {
			if t.Codec != "" && strings.EqualFold(domain.NormalizeCodecName(t.Codec), target) {
				return &domain.SkipRecord{
					Condition: "audio_codec_exists",
					Value:     t.Codec,
					Message:   fmt.Sprintf("audio_codec_exists: %s", cond.AudioCodecExists),
				}
			}
		}
	}

	if cond.SubtitleLanguageExists != "" {
		for _, t := range ev.file.TracksOfKind(domain.TrackSubtitle) {
			if strings.EqualFold(t.Language, cond.SubtitleLanguageExists) {
				return &domain.SkipRecord{
					Condition: "subtitle_language_exists",
					Value:     t.Language,
					Message:   fmt.Sprintf("subtitle_language_exists: %s", cond.SubtitleLanguageExists),
				}
			}
		}
	}

	if len(cond.Container) > 0 && ev.file.Container != "" {
		current := domain.NormalizeContainer(ev.file.Container)
		for _, target := range cond.Container {
			if domain.NormalizeContainer(target) == current {
				return &domain.SkipRecord{
					Condition: "container",
					Value:     ev.file.Container,
					Message:   fmt.Sprintf("container matches [%s]", strings.Join(cond.Container, ", ")),
				}
			}
		}
	}

	if cond.Resolution != "" && hasVideo && video.Height > 0 {
		actual := domain.ResolutionLabel(video.Height)
		target := strings.ToLower(cond.Resolution)
		if target == "4k" {
			target = "2160p"
		}
		if actual == target {
			return &domain.SkipRecord{
				Condition: "resolution",
				Value:     actual,
				Message:   fmt.Sprintf("resolution matches %s", cond.Resolution),
			}
		}
	}

	if cond.ResolutionUnder != "" && hasVideo && video.Height > 0 {
		target := strings.ToLower(cond.ResolutionUnder)
		if target == "4k" {
			target = "2160p"
		}
		if threshold, ok := domain.ResolutionHeight(target); ok && video.Height < threshold {
			actual := domain.ResolutionLabel(video.Height)
			return &domain.SkipRecord{
				Condition: "resolution_under",
				Value:     actual,
				Message:   fmt.Sprintf("resolution (%s) under %s", actual, cond.ResolutionUnder),
			}
		}
	}

	if cond.FileSizeUnder != "" {
		if threshold, err := domain.ParseSize(cond.FileSizeUnder); err == nil && ev.file.SizeBytes < threshold {
			return &domain.SkipRecord{
				Condition: "file_size_under",
				Value:     fmt.Sprintf("%d", ev.file.SizeBytes),
				Message:   fmt.Sprintf("file_size (%d bytes) under %s", ev.file.SizeBytes, cond.FileSizeUnder),
			}
		}
	}

	if cond.FileSizeOver != "" {
		if threshold, err := domain.ParseSize(cond.FileSizeOver); err == nil && ev.file.SizeBytes > threshold {
			return &domain.SkipRecord{
				Condition: "file_size_over",
				Value:     fmt.Sprintf("%d", ev.file.SizeBytes),
				Message:   fmt.Sprintf("file_size (%d bytes) over %s", ev.file.SizeBytes, cond.FileSizeOver),
			}
		}
	}

	duration := ev.file.Duration
	if duration == 0 && hasVideo {
		duration = video.DurationSeconds
	}

	if cond.DurationUnder != "" && duration > 0 {
		if threshold, err := domain.ParseDurationSpec(cond.DurationUnder); err == nil && duration < threshold {
			return &domain.SkipRecord{
				Condition: "duration_under",
				Value:     fmt.Sprintf("%.1fs", duration),
				Message:   fmt.Sprintf("duration (%.1fs) under %s", duration, cond.DurationUnder),
			}
		}
	}

	if cond.DurationOver != "" && duration > 0 {
		if threshold, err := domain.ParseDurationSpec(cond.DurationOver); err == nil && duration > threshold {
			return &domain.SkipRecord{
				Condition: "duration_over",
				Value:     fmt.Sprintf("%.1fs", duration),
				Message:   fmt.Sprintf("duration (%.1fs) over %s", duration, cond.DurationOver),
			}
		}
	}

	return nil
}
