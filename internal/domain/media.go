package domain

import "time"

type TrackKind string

const (
	TrackVideo      TrackKind = "video"
	TrackAudio      TrackKind = "audio"
	TrackSubtitle   TrackKind = "subtitle"
	TrackAttachment TrackKind = "attachment"
	TrackOther      TrackKind = "other"
)

// ColorInfo carries the HDR-relevant color metadata ffprobe reports for a
// video stream. Empty fields mean the stream did not declare them.
type ColorInfo struct {
	Transfer  string `json:"transfer,omitempty"`
	Primaries string `json:"primaries,omitempty"`
	Space     string `json:"space,omitempty"`
	Range     string `json:"range,omitempty"`
}

// Track is one stream inside a media file. The Index is the zero-based
// stream index from the probe and stays stable for the lifetime of the
// FileInfo it belongs to; everything downstream references tracks by index.
type Track struct {
	Index    int       `json:"index"`
	Kind     TrackKind `json:"kind"`
	Codec    string    `json:"codec"`
	Language string    `json:"language"`
	Title    string    `json:"title,omitempty"`
	Default  bool      `json:"default"`
	Forced   bool      `json:"forced"`

	// Video extras.
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	FrameRate string    `json:"frameRate,omitempty"`
	Color     ColorInfo `json:"color,omitempty"`

	// Audio extras.
	Channels      int    `json:"channels,omitempty"`
	ChannelLayout string `json:"channelLayout,omitempty"`

	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// FileInfo is the canonical result of probing one file. It is immutable
// once produced; any successful executor run invalidates it and the file
// must be re-probed.
type FileInfo struct {
	Path      string            `json:"path"`
	Container string            `json:"container"`
	SizeBytes int64             `json:"sizeBytes"`
	ModTime   time.Time         `json:"modTime"`
	Duration  float64           `json:"duration,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Tracks    []Track           `json:"tracks"`
}

// TracksOfKind returns the tracks of the given kind in index order.
func (f FileInfo) TracksOfKind(kind TrackKind) []Track {
	var out []Track
	for _, t := range f.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// TrackByIndex returns the track with the given stream index.
func (f FileInfo) TrackByIndex(index int) (Track, bool) {
	for _, t := range f.Tracks {
		if t.Index == index {
			return t, true
		}
	}
	return Track{}, false
}

// VideoTrack returns the first video track, if any.
func (f FileInfo) VideoTrack() (Track, bool) {
	for _, t := range f.Tracks {
		if t.Kind == TrackVideo {
			return t, true
		}
	}
	return Track{}, false
}
