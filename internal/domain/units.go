package domain

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeMultipliers = map[string]int64{
	"k":  1000,
	"kb": 1000,
	"m":  1000 * 1000,
	"mb": 1000 * 1000,
	"g":  1000 * 1000 * 1000,
	"gb": 1000 * 1000 * 1000,
	"t":  1000 * 1000 * 1000 * 1000,
	"tb": 1000 * 1000 * 1000 * 1000,
}

// ParseSize parses a human size literal like "15M", "192k", or "1.5GB"
// into bytes. A bare number is taken as bytes.
func ParseSize(value string) (int64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	split := len(s)
	for split > 0 {
		c := s[split-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		split--
	}
	numPart, unitPart := s[:split], strings.ToLower(strings.TrimSpace(s[split:]))

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if unitPart == "" || unitPart == "b" {
		return int64(num), nil
	}
	mult, ok := sizeMultipliers[unitPart]
	if !ok {
		return 0, fmt.Errorf("invalid size unit %q in %q", unitPart, value)
	}
	return int64(num * float64(mult)), nil
}

// ParseDurationSpec parses a duration literal like "90m", "1.5h", "45s",
// or a bare number of seconds, into seconds.
func ParseDurationSpec(value string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "h"):
		mult, s = 3600, strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "m"):
		mult, s = 60, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return num * mult, nil
}
