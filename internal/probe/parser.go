package probe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index       *int              `json:"index"`
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	Tags        map[string]string `json:"tags"`
	Disposition struct {
		Default int `json:"default"`
		Forced  int `json:"forced"`
	} `json:"disposition"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	RFrameRate     string `json:"r_frame_rate"`
	AvgFrameRate   string `json:"avg_frame_rate"`
	Channels       int    `json:"channels"`
	ChannelLayout  string `json:"channel_layout"`
	Duration       string `json:"duration"`
	ColorTransfer  string `json:"color_transfer"`
	ColorPrimaries string `json:"color_primaries"`
	ColorSpace     string `json:"color_space"`
	ColorRange     string `json:"color_range"`
}

type probeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

// ParseOutput parses raw ffprobe JSON into a canonical FileInfo. It is a
// pure function; file size and mtime are supplied by the caller. Malformed
// or missing fields degrade gracefully: language defaults to "und",
// dispositions to false, and a duplicate stream index keeps the first
// occurrence and reports a warning.
func ParseOutput(data []byte, path string, size int64, modTime time.Time) (domain.FileInfo, []string, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.FileInfo{}, nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var warnings []string
	seen := make(map[int]bool, len(payload.Streams))
	tracks := make([]domain.Track, 0, len(payload.Streams))

	for pos, stream := range payload.Streams {
		index := pos
		if stream.Index != nil {
			index = *stream.Index
		}
		if seen[index] {
			warnings = append(warnings, fmt.Sprintf("duplicate stream index %d; keeping first occurrence", index))
			continue
		}
		seen[index] = true
		tracks = append(tracks, parseTrack(index, stream))
	}

	tags := make(map[string]string, len(payload.Format.Tags))
	for k, v := range payload.Format.Tags {
		tags[strings.ToLower(k)] = sanitize(v)
	}

	var duration float64
	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			duration = d
		}
	}

	return domain.FileInfo{
		Path:      path,
		Container: domain.NormalizeContainer(payload.Format.FormatName),
		SizeBytes: size,
		ModTime:   modTime.UTC(),
		Duration:  duration,
		Tags:      tags,
		Tracks:    tracks,
	}, warnings, nil
}

func parseTrack(index int, stream probeStream) domain.Track {
	track := domain.Track{
		Index:    index,
		Kind:     mapTrackKind(stream.CodecType),
		Codec:    strings.ToLower(strings.TrimSpace(stream.CodecName)),
		Language: domain.NormalizeLanguage(tag(stream.Tags, "language")),
		Title:    sanitize(tag(stream.Tags, "title")),
		Default:  stream.Disposition.Default == 1,
		Forced:   stream.Disposition.Forced == 1,
	}

	switch track.Kind {
	case domain.TrackVideo:
		if stream.Width > 0 {
			track.Width = stream.Width
		}
		if stream.Height > 0 {
			track.Height = stream.Height
		}
		track.FrameRate = pickFrameRate(stream.RFrameRate, stream.AvgFrameRate)
		track.Color = domain.ColorInfo{
			Transfer:  stream.ColorTransfer,
			Primaries: stream.ColorPrimaries,
			Space:     stream.ColorSpace,
			Range:     stream.ColorRange,
		}
	case domain.TrackAudio:
		if stream.Channels > 0 {
			track.Channels = stream.Channels
		}
		track.ChannelLayout = stream.ChannelLayout
	}

	if stream.Duration != "" {
		if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > 0 {
			track.DurationSeconds = d
		}
	}

	return track
}

func mapTrackKind(codecType string) domain.TrackKind {
	switch strings.ToLower(strings.TrimSpace(codecType)) {
	case "video":
		return domain.TrackVideo
	case "audio":
		return domain.TrackAudio
	case "subtitle":
		return domain.TrackSubtitle
	case "attachment":
		return domain.TrackAttachment
	default:
		return domain.TrackOther
	}
}

// pickFrameRate prefers r_frame_rate and falls back to avg_frame_rate;
// ffprobe reports "0/0" for streams with no rate.
func pickFrameRate(r, avg string) string {
	if valid := validRate(r); valid != "" {
		return valid
	}
	return validRate(avg)
}

func validRate(rate string) string {
	rate = strings.TrimSpace(rate)
	if rate == "" || rate == "0/0" || strings.HasPrefix(rate, "0/") {
		return ""
	}
	return rate
}

func tag(tags map[string]string, key string) string {
	if len(tags) == 0 {
		return ""
	}
	if v, ok := tags[key]; ok {
		return v
	}
	if v, ok := tags[strings.ToUpper(key)]; ok {
		return v
	}
	if v, ok := tags[strings.ToLower(key)]; ok {
		return v
	}
	return ""
}

func sanitize(value string) string {
	return strings.ToValidUTF8(strings.TrimSpace(value), "�")
}
