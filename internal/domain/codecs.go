package domain

import (
	"path"
	"strings"
)

// videoCodecAliases groups video codec names that identify the same codec.
// hevc and h265 are the same codec; h264 is distinct.
var videoCodecAliases = map[string][]string{
	"hevc": {"hevc", "h265", "x265"},
	"h264": {"h264", "avc", "x264"},
	"vp9":  {"vp9"},
	"av1":  {"av1"},
}

// audioCodecAliases groups audio codec spellings that policies may use
// interchangeably with what ffprobe reports.
var audioCodecAliases = map[string][]string{
	"truehd": {"truehd", "dolby truehd"},
	"dts-hd": {"dts-hd ma", "dts-hd", "dtshd", "dts_hd"},
	"dts":    {"dts", "dca"},
	"flac":   {"flac"},
	"pcm":    {"pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le", "pcm"},
	"aac":    {"aac", "aac_latm"},
	"ac3":    {"ac3", "ac-3", "a52"},
	"eac3":   {"eac3", "e-ac-3", "ec3"},
	"opus":   {"opus"},
	"mp3":    {"mp3", "mp3float"},
	"vorbis": {"vorbis"},
}

// NormalizeCodecName lowercases and collapses the DTS-HD and TrueHD
// spellings into a single form for comparison.
func NormalizeCodecName(codec string) string {
	normalized := strings.ToLower(strings.TrimSpace(codec))
	if strings.Contains(normalized, "dts-hd") || strings.Contains(normalized, "dtshd") {
		return "dts-hd"
	}
	if strings.Contains(normalized, "truehd") {
		return "truehd"
	}
	return normalized
}

// VideoCodecMatches reports whether a probed video codec matches a policy
// target, honoring alias groups (hevc == h265, h264 distinct).
func VideoCodecMatches(codec, target string) bool {
	c := strings.ToLower(strings.TrimSpace(codec))
	t := strings.ToLower(strings.TrimSpace(target))
	if c == "" || t == "" {
		return false
	}
	if c == t {
		return true
	}
	for _, variants := range videoCodecAliases {
		var codecIn, targetIn bool
		for _, v := range variants {
			if v == c {
				codecIn = true
			}
			if v == t {
				targetIn = true
			}
		}
		if codecIn && targetIn {
			return true
		}
	}
	return false
}

// AudioCodecMatches reports whether a probed audio codec matches a pattern.
// The pattern may be an exact name, a wildcard (pcm_*), or an alias group
// name (dts matches all DTS variants).
func AudioCodecMatches(codec, pattern string) bool {
	if strings.TrimSpace(codec) == "" {
		return false
	}
	normalized := NormalizeCodecName(codec)
	p := strings.ToLower(strings.TrimSpace(pattern))

	if normalized == p {
		return true
	}

	if variants, ok := audioCodecAliases[p]; ok {
		for _, v := range variants {
			if normalized == v || strings.HasPrefix(normalized, v) {
				return true
			}
		}
		if strings.HasPrefix(normalized, p) {
			return true
		}
	}

	if strings.ContainsAny(p, "*?") {
		if matched, err := path.Match(p, normalized); err == nil && matched {
			return true
		}
	}

	return strings.Contains(normalized, p) && p != ""
}

var containerAliases = map[string]string{
	"matroska":      "mkv",
	"matroska,webm": "mkv",
	"webm":          "mkv",
	"mkv":           "mkv",
	"mka":           "mkv",
	"mks":           "mkv",
	"mov,mp4,m4a,3gp,3g2,mj2": "mp4",
	"mp4": "mp4",
	"m4v": "mp4",
	"avi": "avi",
}

// NormalizeContainer maps ffprobe format names and file extensions onto a
// single container tag (matroska and mkv compare equal).
func NormalizeContainer(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return ""
	}
	if normalized, ok := containerAliases[f]; ok {
		return normalized
	}
	// ffprobe reports comma-separated demuxer name lists; take the first
	// recognizable entry.
	for _, part := range strings.Split(f, ",") {
		if normalized, ok := containerAliases[strings.TrimSpace(part)]; ok {
			return normalized
		}
	}
	return f
}

// resolutionHeights maps resolution labels onto frame heights for
// threshold comparisons.
var resolutionHeights = map[string]int{
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
	"1440p": 1440,
	"2160p": 2160,
	"4k":    2160,
	"8k":    4320,
}

// ResolutionHeight returns the frame height for a resolution label.
func ResolutionHeight(label string) (int, bool) {
	h, ok := resolutionHeights[strings.ToLower(strings.TrimSpace(label))]
	return h, ok
}

// ResolutionLabel converts a frame height into the standard label.
func ResolutionLabel(height int) string {
	switch {
	case height >= 2160:
		return "2160p"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	default:
		return "480p"
	}
}

// containerCodecSupport lists, per target container (mkv, mp4), the codecs
// known to mux into it. Anything not listed fails the
// container-compatibility pre-flight when converting.
var containerCodecSupport = map[string]map[string]bool{
	"mkv": {
		"h264": true, "hevc": true, "vp9": true, "av1": true, "mpeg2video": true, "mpeg4": true,
		"aac": true, "ac3": true, "eac3": true, "dts": true, "truehd": true, "flac": true,
		"opus": true, "vorbis": true, "mp3": true, "pcm_s16le": true, "pcm_s24le": true,
		"subrip": true, "ass": true, "ssa": true, "hdmv_pgs_subtitle": true, "dvd_subtitle": true,
	},
	"mp4": {
		"h264": true, "hevc": true, "av1": true, "mpeg4": true,
		"aac": true, "ac3": true, "eac3": true, "mp3": true, "opus": true, "flac": true,
		"mov_text": true,
	},
}

// CodecCompatibleWithContainer reports whether a codec can be remuxed into
// the target container without re-encoding.
func CodecCompatibleWithContainer(codec, container string) bool {
	table, ok := containerCodecSupport[NormalizeContainer(container)]
	if !ok {
		return true
	}
	c := strings.ToLower(strings.TrimSpace(codec))
	if table[c] {
		return true
	}
	// Alias-aware second chance (e.g. probed "dts-hd ma" vs table "dts").
	for name := range table {
		if AudioCodecMatches(c, name) || VideoCodecMatches(c, name) {
			return true
		}
	}
	return false
}
