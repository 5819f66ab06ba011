package probe

import (
	"testing"
	"time"

	"github.com/randomparity/vpo/internal/domain"
)

const sampleProbe = `{
  "streams": [
    {
      "index": 0,
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "r_frame_rate": "24000/1001",
      "avg_frame_rate": "24000/1001",
      "color_transfer": "bt709",
      "color_primaries": "bt709",
      "disposition": {"default": 1, "forced": 0}
    },
    {
      "index": 1,
      "codec_type": "audio",
      "codec_name": "dts",
      "channels": 6,
      "channel_layout": "5.1(side)",
      "tags": {"language": "eng", "title": "Surround"},
      "disposition": {"default": 1, "forced": 0}
    },
    {
      "index": 2,
      "codec_type": "subtitle",
      "codec_name": "subrip",
      "tags": {"LANGUAGE": "ger"},
      "disposition": {"default": 0, "forced": 1}
    }
  ],
  "format": {
    "format_name": "matroska,webm",
    "duration": "7200.125",
    "tags": {"TITLE": "Example", "encoder": "libebml"}
  }
}`

func TestParseOutput(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	info, warnings, err := ParseOutput([]byte(sampleProbe), "/library/movie.mkv", 1<<30, mod)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if info.Container != "mkv" {
		t.Errorf("container = %q, want mkv (normalized from matroska,webm)", info.Container)
	}
	if info.Duration != 7200.125 {
		t.Errorf("duration = %v", info.Duration)
	}
	if info.Tags["title"] != "Example" {
		t.Errorf("container tags not lowercased: %v", info.Tags)
	}

	if len(info.Tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(info.Tracks))
	}

	v := info.Tracks[0]
	if v.Kind != domain.TrackVideo || v.Width != 1920 || v.Height != 1080 {
		t.Errorf("video track wrong: %+v", v)
	}
	if v.FrameRate != "24000/1001" {
		t.Errorf("frame rate = %q", v.FrameRate)
	}
	if v.Color.Transfer != "bt709" {
		t.Errorf("color transfer = %q", v.Color.Transfer)
	}
	if v.Language != "und" {
		t.Errorf("missing language should normalize to und, got %q", v.Language)
	}

	a := info.Tracks[1]
	if a.Language != "eng" || a.Channels != 6 || a.Title != "Surround" {
		t.Errorf("audio track wrong: %+v", a)
	}
	if !a.Default || a.Forced {
		t.Errorf("audio disposition wrong: %+v", a)
	}

	s := info.Tracks[2]
	if s.Language != "ger" {
		t.Errorf("uppercase LANGUAGE tag not picked up: %+v", s)
	}
	if !s.Forced {
		t.Errorf("forced disposition lost: %+v", s)
	}
}

// Two streams with the same index: one warning, first kept, second
// dropped.
func TestParseOutputDuplicateStreamIndex(t *testing.T) {
	payload := `{
	  "streams": [
	    {"index": 0, "codec_type": "video", "codec_name": "h264"},
	    {"index": 0, "codec_type": "audio", "codec_name": "aac"}
	  ],
	  "format": {"format_name": "matroska"}
	}`
	info, warnings, err := ParseOutput([]byte(payload), "/x.mkv", 0, time.Time{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if len(info.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(info.Tracks))
	}
	if info.Tracks[0].Kind != domain.TrackVideo {
		t.Errorf("first occurrence should win, got %+v", info.Tracks[0])
	}
}

func TestParseOutputDegradesGracefully(t *testing.T) {
	payload := `{
	  "streams": [
	    {"codec_type": "audio", "codec_name": "aac"}
	  ],
	  "format": {"format_name": "mp4"}
	}`
	info, _, err := ParseOutput([]byte(payload), "/x.mp4", 0, time.Time{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	tr := info.Tracks[0]
	if tr.Language != "und" {
		t.Errorf("language should default to und, got %q", tr.Language)
	}
	if tr.Default || tr.Forced {
		t.Errorf("dispositions should default to false: %+v", tr)
	}
}

func TestParseOutputFrameRateFallback(t *testing.T) {
	payload := `{
	  "streams": [
	    {"index": 0, "codec_type": "video", "codec_name": "h264",
	     "r_frame_rate": "0/0", "avg_frame_rate": "25/1"}
	  ],
	  "format": {"format_name": "matroska"}
	}`
	info, _, err := ParseOutput([]byte(payload), "/x.mkv", 0, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Tracks[0].FrameRate != "25/1" {
		t.Errorf("frame rate fallback = %q, want 25/1", info.Tracks[0].FrameRate)
	}
}

func TestParseOutputMalformedJSON(t *testing.T) {
	if _, _, err := ParseOutput([]byte("{not json"), "/x.mkv", 0, time.Time{}); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
