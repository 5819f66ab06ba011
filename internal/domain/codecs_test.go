package domain

import "testing"

func TestVideoCodecMatches(t *testing.T) {
	cases := []struct {
		codec, target string
		want          bool
	}{
		{"hevc", "h265", true},
		{"h265", "hevc", true},
		{"hevc", "hevc", true},
		{"h264", "hevc", false},
		{"h264", "avc", true},
		{"av1", "hevc", false},
		{"", "hevc", false},
	}
	for _, tc := range cases {
		if got := VideoCodecMatches(tc.codec, tc.target); got != tc.want {
			t.Errorf("VideoCodecMatches(%q, %q) = %v, want %v", tc.codec, tc.target, got, tc.want)
		}
	}
}

func TestAudioCodecMatches(t *testing.T) {
	cases := []struct {
		codec, pattern string
		want           bool
	}{
		{"dts-hd ma", "dts-hd", true},
		{"dtshd", "dts-hd", true},
		{"dca", "dts", true},
		{"pcm_s24le", "pcm_*", true},
		{"pcm_s24le", "pcm", true},
		{"aac_latm", "aac", true},
		{"e-ac-3", "eac3", true},
		{"opus", "aac", false},
		{"", "aac", false},
	}
	for _, tc := range cases {
		if got := AudioCodecMatches(tc.codec, tc.pattern); got != tc.want {
			t.Errorf("AudioCodecMatches(%q, %q) = %v, want %v", tc.codec, tc.pattern, got, tc.want)
		}
	}
}

func TestNormalizeContainer(t *testing.T) {
	cases := map[string]string{
		"matroska":                "mkv",
		"matroska,webm":           "mkv",
		"mkv":                     "mkv",
		"mov,mp4,m4a,3gp,3g2,mj2": "mp4",
		"avi":                     "avi",
		"MKV":                     "mkv",
		"":                        "",
	}
	for input, want := range cases {
		if got := NormalizeContainer(input); got != want {
			t.Errorf("NormalizeContainer(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestResolutionLabels(t *testing.T) {
	cases := map[int]string{
		2160: "2160p",
		1440: "1440p",
		1080: "1080p",
		720:  "720p",
		480:  "480p",
		576:  "480p",
	}
	for height, want := range cases {
		if got := ResolutionLabel(height); got != want {
			t.Errorf("ResolutionLabel(%d) = %q, want %q", height, got, want)
		}
	}
	if h, ok := ResolutionHeight("4k"); !ok || h != 2160 {
		t.Errorf("ResolutionHeight(4k) = %d, %v", h, ok)
	}
}

func TestCodecCompatibleWithContainer(t *testing.T) {
	if !CodecCompatibleWithContainer("h264", "mp4") {
		t.Error("h264 should fit mp4")
	}
	if CodecCompatibleWithContainer("truehd", "mp4") {
		t.Error("truehd should not fit mp4")
	}
	if !CodecCompatibleWithContainer("truehd", "mkv") {
		t.Error("truehd should fit mkv")
	}
	if !CodecCompatibleWithContainer("hdmv_pgs_subtitle", "matroska") {
		t.Error("pgs should fit matroska via normalization")
	}
}
