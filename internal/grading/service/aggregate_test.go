package service

import (
	"testing"

	"codeprep/internal/grading/model"
)

func TestAggregate(t *testing.T) {
	accepted := model.TestCaseResult{Status: model.StatusAccepted, Passed: true}
	wrong := model.TestCaseResult{Status: model.StatusWrongAnswer}
	timeout := model.TestCaseResult{Status: model.StatusTimeout}

	tests := []struct {
		name    string
		results []model.TestCaseResult
		want    model.Summary
	}{
		{
			name:    "all passed",
			results: []model.TestCaseResult{accepted, accepted},
			want:    model.Summary{Status: model.StatusAccepted, AllPassed: true, Passed: 2, Total: 2, Message: "All 2 test cases passed"},
		},
		{
			name:    "partial",
			results: []model.TestCaseResult{accepted, wrong, timeout},
			want:    model.Summary{Status: model.StatusWrongAnswer, Passed: 1, Total: 3, Message: "1/3 test cases passed"},
		},
		{
			name:    "only timeouts report wrong answer",
			results: []model.TestCaseResult{timeout},
			want:    model.Summary{Status: model.StatusWrongAnswer, Passed: 0, Total: 1, Message: "0/1 test cases passed"},
		},
		{
			name:    "empty",
			results: nil,
			want:    model.Summary{Status: model.StatusWrongAnswer, Total: 0, Message: "0/0 test cases passed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.results); got != tt.want {
				t.Fatalf("Aggregate = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAggregateCompileShortCircuit(t *testing.T) {
	results := []model.TestCaseResult{
		{Index: 0, Status: model.StatusTimeout, ActualOutput: "Time limit exceeded while waiting for the judge"},
		{Index: 1, Status: model.StatusCompileError, ActualOutput: "SyntaxError: invalid syntax", JudgeStatusID: 6},
		{Index: 2, Status: model.StatusWrongAnswer, ActualOutput: "x", Diff: "-y\n+x\n", JudgeStatusID: 4},
	}

	got := Aggregate(results)
	if got.Status != model.StatusCompileError || got.AllPassed || got.Message != "Compilation error" {
		t.Fatalf("summary = %+v", got)
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("index %d moved to %d", i, r.Index)
		}
		if r.Status != model.StatusCompileError || r.ActualOutput != "SyntaxError: invalid syntax" || r.Passed || r.Diff != "" {
			t.Fatalf("result %d not rewritten: %+v", i, r)
		}
		if r.JudgeStatusID != 6 {
			t.Fatalf("result %d judge status = %d, want 6", i, r.JudgeStatusID)
		}
	}
	for i, pr := range (model.FinalResult{Results: results}).PersistedResults() {
		if pr.Status.ID != 6 {
			t.Fatalf("persisted result %d status id = %d, want 6", i, pr.Status.ID)
		}
	}
}
