package domain

import "sort"

// AnalysisSet bundles the optional side-channel analyses the evaluator may
// consult: per-track language detection, multi-language segments, and
// plugin-supplied metadata keyed by plugin name. A zero AnalysisSet is
// valid and means "no analyses available".
type AnalysisSet struct {
	Language map[int]LanguageAnalysis
	Segments map[int][]LanguageSegment
	Plugins  map[string]map[string]any
}

// PluginField looks up one field of one plugin's metadata blob.
func (a AnalysisSet) PluginField(plugin, field string) (any, bool) {
	blob, ok := a.Plugins[plugin]
	if !ok {
		return nil, false
	}
	v, ok := blob[field]
	return v, ok
}

// PluginNames returns the plugin names in sorted order so iteration over
// analyses is deterministic.
func (a AnalysisSet) PluginNames() []string {
	names := make([]string, 0, len(a.Plugins))
	for name := range a.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OriginalLanguage returns the detected original content language, if the
// classification analysis identified one.
func (a AnalysisSet) OriginalLanguage() (string, bool) {
	indices := make([]int, 0, len(a.Language))
	for idx := range a.Language {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		if la := a.Language[idx]; la.IsOriginal && la.Language != "" {
			return la.Language, true
		}
	}
	return "", false
}
