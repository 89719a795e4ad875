package model

import "testing"

func TestProblemCases(t *testing.T) {
	p := &Problem{
		TestCases: []TestCase{
			{Ordinal: 3, Input: "c", IsSample: false},
			{Ordinal: 2, Input: "b", IsSample: true},
			{Ordinal: 1, Input: "a", IsSample: true},
		},
	}

	samples := p.Cases(true)
	if len(samples) != 2 || samples[0].Input != "a" || samples[1].Input != "b" {
		t.Fatalf("samples = %+v", samples)
	}
	all := p.Cases(false)
	if len(all) != 3 || all[2].Input != "c" {
		t.Fatalf("all = %+v", all)
	}
}

func TestProblemTemplate(t *testing.T) {
	p := &Problem{}
	if got := p.Template("python"); got != (Template{}) {
		t.Fatalf("template = %+v, want zero", got)
	}
	p.Templates = map[string]Template{"python": {TopCode: "import sys"}}
	if got := p.Template("python"); got.TopCode != "import sys" {
		t.Fatalf("template = %+v", got)
	}
	if got := p.Template(" Python "); got.TopCode != "import sys" {
		t.Fatalf("template for mixed-case name = %+v", got)
	}
}
