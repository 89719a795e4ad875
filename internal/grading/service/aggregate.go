package service

import (
	"fmt"

	"codeprep/internal/grading/model"
)

// Aggregate folds per-case results into one verdict. A compile error anywhere
// applies to every case, so each result is rewritten to carry that diagnostic.
func Aggregate(results []model.TestCaseResult) model.Summary {
	total := len(results)
	if total == 0 {
		return model.Summary{Status: model.StatusWrongAnswer, Message: "0/0 test cases passed"}
	}

	passed := 0
	compileIdx := -1
	for i, r := range results {
		if r.Passed {
			passed++
		}
		if compileIdx < 0 && r.Status == model.StatusCompileError {
			compileIdx = i
		}
	}

	summary := model.Summary{Passed: passed, Total: total}
	switch {
	case passed == total:
		summary.Status = model.StatusAccepted
		summary.AllPassed = true
		summary.Message = fmt.Sprintf("All %d test cases passed", total)
	case compileIdx >= 0:
		diagnostic := results[compileIdx].ActualOutput
		judgeStatus := results[compileIdx].JudgeStatusID
		for i := range results {
			results[i].Status = model.StatusCompileError
			results[i].JudgeStatusID = judgeStatus
			results[i].ActualOutput = diagnostic
			results[i].Passed = false
			results[i].Diff = ""
		}
		summary.Passed = 0
		summary.Status = model.StatusCompileError
		summary.Message = "Compilation error"
	default:
		summary.Status = model.StatusWrongAnswer
		summary.Message = fmt.Sprintf("%d/%d test cases passed", passed, total)
	}
	return summary
}
