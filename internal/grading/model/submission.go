package model

import "time"

// Status is the verdict of a submission or of one test case.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusWrongAnswer  Status = "wrong_answer"
	StatusCompileError Status = "compile_error"
	StatusRuntimeError Status = "runtime_error"
	StatusServerError  Status = "server_error"
	StatusTimeout      Status = "timeout"
)

// IsFinal reports whether the status is a finished verdict.
func (s Status) IsFinal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusCompileError, StatusRuntimeError, StatusServerError, StatusTimeout:
		return true
	default:
		return false
	}
}

// Mode distinguishes sample runs from full submissions.
type Mode string

const (
	ModeRun    Mode = "run"
	ModeSubmit Mode = "submit"
)

func (m Mode) Valid() bool {
	return m == ModeRun || m == ModeSubmit
}

// Submission is one graded run or submit action.
type Submission struct {
	ID          string           `json:"id"`
	ProblemID   int64            `json:"problem_id"`
	UserID      string           `json:"user_id"`
	Language    string           `json:"language"`
	LanguageID  int              `json:"language_id"`
	Mode        Mode             `json:"mode"`
	SourceCode  string           `json:"-"`
	SourceKey   string           `json:"source_key,omitempty"`
	JudgeRef    string           `json:"judge_ref,omitempty"`
	Results     []TestCaseResult `json:"results"`
	Status      Status           `json:"status"`
	PassedCount int              `json:"passed_count"`
	TotalCount  int              `json:"total_count"`
	CreatedAt   time.Time        `json:"created_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

// TestCaseResult is the outcome for one test case index.
type TestCaseResult struct {
	Index          int    `json:"index"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output"`
	Stderr         string `json:"stderr,omitempty"`
	Passed         bool   `json:"passed"`
	Status         Status `json:"status"`
	Runtime        string `json:"runtime"`
	Memory         string `json:"memory"`
	JudgeStatusID  int    `json:"judge_status_id,omitempty"`
	Diff           string `json:"diff,omitempty"`
}

// PersistedResult is the stored shape of one result row.
type PersistedResult struct {
	Status PersistedStatus `json:"status"`
	Stdout string          `json:"stdout"`
	Time   string          `json:"time"`
	Memory string          `json:"memory"`
}

type PersistedStatus struct {
	ID int `json:"id"`
}

// FinalResult carries everything written by the single finalizing update.
type FinalResult struct {
	Status          Status
	JudgeRef        string
	Results         []TestCaseResult
	ExpectedOutputs []string
	Passed          int
	Total           int
	FinishedAt      time.Time
}

// PersistedResults projects results to their stored shape.
func (f FinalResult) PersistedResults() []PersistedResult {
	out := make([]PersistedResult, len(f.Results))
	for i, r := range f.Results {
		out[i] = PersistedResult{
			Status: PersistedStatus{ID: r.JudgeStatusID},
			Stdout: r.ActualOutput,
			Time:   r.Runtime,
			Memory: r.Memory,
		}
	}
	return out
}

// Summary is the aggregate verdict over all test cases.
type Summary struct {
	Status    Status `json:"status"`
	AllPassed bool   `json:"all_passed"`
	Passed    int    `json:"passed"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// GradeOutcome is returned to the caller of a run or submit.
type GradeOutcome struct {
	Submission   *Submission   `json:"submission"`
	Summary      Summary       `json:"summary"`
	Notification *Notification `json:"notification,omitempty"`
	// PersistError is set when the final update failed; the verdict still stands.
	PersistError string `json:"persist_error,omitempty"`
}
