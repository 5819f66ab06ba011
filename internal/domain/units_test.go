package domain

import "testing"

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"15M":   15_000_000,
		"192k":  192_000,
		"1.5GB": 1_500_000_000,
		"500MB": 500_000_000,
		"2T":    2_000_000_000_000,
		"1024":  1024,
		"100b":  100,
	}
	for input, want := range cases {
		got, err := ParseSize(input)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", input, got, want)
		}
	}

	for _, bad := range []string{"", "lots", "10X", "M"} {
		if _, err := ParseSize(bad); err == nil {
			t.Errorf("ParseSize(%q) should fail", bad)
		}
	}
}

func TestParseDurationSpec(t *testing.T) {
	cases := map[string]float64{
		"90m":  5400,
		"1.5h": 5400,
		"45s":  45,
		"120":  120,
	}
	for input, want := range cases {
		got, err := ParseDurationSpec(input)
		if err != nil {
			t.Errorf("ParseDurationSpec(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDurationSpec(%q) = %v, want %v", input, got, want)
		}
	}
	if _, err := ParseDurationSpec("soon"); err == nil {
		t.Error("ParseDurationSpec(soon) should fail")
	}
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"eng":   "eng",
		"en":    "eng",
		"de":    "ger",
		"deu":   "ger",
		"fra":   "fre",
		"":      "und",
		"und":   "und",
		"xx":    "und",
		"en-US": "eng",
		"jpn":   "jpn",
	}
	for input, want := range cases {
		if got := NormalizeLanguage(input); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPlanStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to PlanStatus }{
		{PlanPending, PlanApproved},
		{PlanPending, PlanRejected},
		{PlanApproved, PlanExecuted},
		{PlanApproved, PlanFailed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be permitted", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to PlanStatus }{
		{PlanPending, PlanExecuted},
		{PlanExecuted, PlanFailed},
		{PlanRejected, PlanApproved},
		{PlanFailed, PlanPending},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestPlanMetadataOnly(t *testing.T) {
	meta := Plan{Actions: []PlannedAction{
		{Kind: ActionSetForced},
		{Kind: ActionSetContainerMetadata},
		{Kind: ActionSetFileMTime},
	}}
	if !meta.MetadataOnly() {
		t.Error("flag/tag/mtime plan should be metadata-only")
	}

	remux := Plan{Actions: []PlannedAction{{Kind: ActionSetForced}, {Kind: ActionRemoveTrack}}}
	if remux.MetadataOnly() {
		t.Error("plan with REMOVE_TRACK is not metadata-only")
	}

	if !(Plan{}).IsEmpty() {
		t.Error("zero-action plan should be empty")
	}
}
