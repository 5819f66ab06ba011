package domain

import "strings"

// iso639_1to2B maps two-letter codes onto the ISO 639-2/B codes VPO stores.
var iso639_1to2B = map[string]string{
	"en": "eng", "de": "ger", "fr": "fre", "es": "spa", "it": "ita",
	"ja": "jpn", "ko": "kor", "zh": "chi", "ru": "rus", "pt": "por",
	"nl": "dut", "sv": "swe", "no": "nor", "da": "dan", "fi": "fin",
	"pl": "pol", "cs": "cze", "hu": "hun", "tr": "tur", "ar": "ara",
	"he": "heb", "hi": "hin", "th": "tha", "vi": "vie", "uk": "ukr",
}

// iso639_2Tto2B maps terminological codes onto bibliographic ones.
var iso639_2Tto2B = map[string]string{
	"deu": "ger", "fra": "fre", "ces": "cze", "nld": "dut",
	"ell": "gre", "zho": "chi", "slk": "slo", "ron": "rum",
	"hye": "arm", "eus": "baq", "fas": "per", "sqi": "alb",
	"mya": "bur", "kat": "geo", "isl": "ice", "mkd": "mac",
	"mri": "mao", "msa": "may", "bod": "tib", "cym": "wel",
}

// NormalizeLanguage maps a probed language tag onto ISO 639-2/B.
// Unknown, empty, or unmappable values become "und".
func NormalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if l == "" || l == "und" || l == "unknown" {
		return "und"
	}
	if len(l) == 2 {
		if mapped, ok := iso639_1to2B[l]; ok {
			return mapped
		}
		return "und"
	}
	if len(l) == 3 {
		if mapped, ok := iso639_2Tto2B[l]; ok {
			return mapped
		}
		return l
	}
	// BCP-47 style tags like "en-US": keep the primary subtag.
	if idx := strings.IndexAny(l, "-_"); idx > 0 {
		return NormalizeLanguage(l[:idx])
	}
	return "und"
}
