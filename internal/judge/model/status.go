package model

import "fmt"

// StatusID is the numeric execution status reported by the judge.
type StatusID int

const (
	StatusInQueue             StatusID = 1
	StatusProcessing          StatusID = 2
	StatusAccepted            StatusID = 3
	StatusWrongAnswer         StatusID = 4
	StatusTimeLimitExceeded   StatusID = 5
	StatusCompilationError    StatusID = 6
	StatusRuntimeErrorSIGSEGV StatusID = 7
	StatusRuntimeErrorSIGXFSZ StatusID = 8
	StatusRuntimeErrorSIGFPE  StatusID = 9
	StatusRuntimeErrorSIGABRT StatusID = 10
	StatusRuntimeErrorNZEC    StatusID = 11
	StatusRuntimeErrorOther   StatusID = 12
	StatusInternalError       StatusID = 13
	StatusExecFormatError     StatusID = 14
)

// Phase groups status ids by how the grading pipeline reacts to them.
type Phase int

const (
	// PhasePending means the judge has not finished; poll again.
	PhasePending Phase = iota
	// PhaseInternalError is a judge-side failure, terminal.
	PhaseInternalError
	// PhaseCompileError is a compilation failure, terminal.
	PhaseCompileError
	// PhaseFinished covers every other terminal status; the verdict comes from stdout and stderr.
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseInternalError:
		return "internal_error"
	case PhaseCompileError:
		return "compile_error"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Phase classifies the status. Ids at or below StatusProcessing are pending.
// Unknown ids above that are treated as finished.
func (s StatusID) Phase() Phase {
	switch {
	case s <= StatusProcessing:
		return PhasePending
	case s == StatusInternalError:
		return PhaseInternalError
	case s == StatusCompilationError:
		return PhaseCompileError
	default:
		return PhaseFinished
	}
}

// Terminal reports whether polling should stop.
func (s StatusID) Terminal() bool {
	return s.Phase() != PhasePending
}

var statusDescriptions = map[StatusID]string{
	StatusInQueue:             "In Queue",
	StatusProcessing:          "Processing",
	StatusAccepted:            "Accepted",
	StatusWrongAnswer:         "Wrong Answer",
	StatusTimeLimitExceeded:   "Time Limit Exceeded",
	StatusCompilationError:    "Compilation Error",
	StatusRuntimeErrorSIGSEGV: "Runtime Error (SIGSEGV)",
	StatusRuntimeErrorSIGXFSZ: "Runtime Error (SIGXFSZ)",
	StatusRuntimeErrorSIGFPE:  "Runtime Error (SIGFPE)",
	StatusRuntimeErrorSIGABRT: "Runtime Error (SIGABRT)",
	StatusRuntimeErrorNZEC:    "Runtime Error (NZEC)",
	StatusRuntimeErrorOther:   "Runtime Error (Other)",
	StatusInternalError:       "Internal Error",
	StatusExecFormatError:     "Exec Format Error",
}

func (s StatusID) String() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return fmt.Sprintf("Status(%d)", int(s))
}
