package model

import (
	"sort"
	"strings"
)

// TestCase is one stdin/expected-output pair of a problem.
type TestCase struct {
	Ordinal        int    `json:"ordinal"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
}

// Template wraps user code with language-specific driver code.
type Template struct {
	TopCode    string `json:"top_code"`
	BottomCode string `json:"bottom_code"`
}

// Problem is the grading view of a problem: its test cases and code templates.
type Problem struct {
	ID        int64               `json:"id"`
	Title     string              `json:"title"`
	TestCases []TestCase          `json:"test_cases"`
	Templates map[string]Template `json:"templates"`
}

// Cases returns the cases graded for a run (samples only) or a submit (all),
// ordered by ordinal.
func (p *Problem) Cases(samplesOnly bool) []TestCase {
	out := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if samplesOnly && !tc.IsSample {
			continue
		}
		out = append(out, tc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Template returns the template for language, zero when none is registered.
func (p *Problem) Template(language string) Template {
	if p.Templates == nil {
		return Template{}
	}
	return p.Templates[NormalizeLanguage(language)]
}

// NormalizeLanguage is the canonical form of a language name, used as the
// Templates key and for judge language lookups.
func NormalizeLanguage(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
