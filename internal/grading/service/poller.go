package service

import (
	"context"
	"errors"
	"time"

	"codeprep/internal/grading/model"
	judgemodel "codeprep/internal/judge/model"
	problemmodel "codeprep/internal/problem/model"
	"codeprep/pkg/utils/logger"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	timeoutMessage     = "Time limit exceeded while waiting for the judge"
	serverErrorMessage = "Judge server error, please try again later"
	compileFallback    = "Compilation failed"
	zeroMeasure        = "0"
)

var errStillPending = errors.New("execution still pending")

// ResultFetcher reads the current state of one execution token.
type ResultFetcher interface {
	GetResult(ctx context.Context, token judgemodel.Token) (judgemodel.ExecutionSnapshot, error)
}

// Budget bounds how long a token is polled.
type Budget struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

func (b Budget) normalized() Budget {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	if b.Interval <= 0 {
		b.Interval = time.Second
	}
	return b
}

// Total is the longest a poll under this budget can take.
func (b Budget) Total() time.Duration {
	b = b.normalized()
	return time.Duration(b.MaxAttempts) * b.Interval
}

// PollState is how a poll ended.
type PollState int

const (
	PollResolved PollState = iota
	PollExhausted
	PollCanceled
)

func (s PollState) String() string {
	switch s {
	case PollResolved:
		return "resolved"
	case PollExhausted:
		return "exhausted"
	case PollCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// PollOutcome is the result of polling one token.
type PollOutcome struct {
	State    PollState
	Snapshot judgemodel.ExecutionSnapshot
	Attempts int
	LastErr  error
}

// Poller polls execution tokens until they reach a terminal status.
type Poller struct {
	fetcher ResultFetcher
}

func NewPoller(fetcher ResultFetcher) *Poller {
	return &Poller{fetcher: fetcher}
}

// Poll fetches token up to budget.MaxAttempts times, budget.Interval apart.
// Pending statuses and fetch errors consume an attempt; nothing else is retried.
func (p *Poller) Poll(ctx context.Context, token judgemodel.Token, budget Budget) PollOutcome {
	budget = budget.normalized()
	var out PollOutcome

	backoff := retry.WithMaxRetries(uint64(budget.MaxAttempts-1), retry.NewConstant(budget.Interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out.Attempts++
		snapshot, err := p.fetcher.GetResult(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out.LastErr = err
			logger.Debug(ctx, "poll attempt failed",
				zap.String("token", string(token)),
				zap.Int("attempt", out.Attempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		out.Snapshot = snapshot
		if !snapshot.Status.ID.Terminal() {
			out.LastErr = errStillPending
			return retry.RetryableError(errStillPending)
		}
		out.LastErr = nil
		return nil
	})

	switch {
	case err == nil:
		out.State = PollResolved
	case ctx.Err() != nil:
		out.State = PollCanceled
	default:
		out.State = PollExhausted
		logger.Warn(ctx, "poll budget exhausted",
			zap.String("token", string(token)),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.LastErr),
		)
	}
	return out
}

// Classify turns a poll outcome into the result for test case index.
func Classify(index int, outcome PollOutcome, tc problemmodel.TestCase) model.TestCaseResult {
	result := model.TestCaseResult{
		Index:          index,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Runtime:        zeroMeasure,
		Memory:         zeroMeasure,
	}
	if outcome.State != PollResolved {
		result.Status = model.StatusTimeout
		result.ActualOutput = timeoutMessage
		return result
	}

	snapshot := outcome.Snapshot
	result.JudgeStatusID = int(snapshot.Status.ID)

	switch snapshot.Status.ID.Phase() {
	case judgemodel.PhaseInternalError:
		result.Status = model.StatusServerError
		result.ActualOutput = serverErrorMessage
		return result
	case judgemodel.PhaseCompileError:
		result.Status = model.StatusCompileError
		result.ActualOutput = firstNonEmpty(snapshot.CompileOutputText(), snapshot.StderrText(), compileFallback)
		result.Runtime = snapshot.RuntimeText()
		result.Memory = snapshot.MemoryText()
		return result
	}

	result.Runtime = snapshot.RuntimeText()
	result.Memory = snapshot.MemoryText()
	stdout := snapshot.StdoutText()
	stderr := snapshot.StderrText()

	switch {
	case stderr != "":
		result.Status = model.StatusRuntimeError
		result.ActualOutput = stderr
		result.Stderr = stderr
	case OutputsMatch(stdout, tc.ExpectedOutput):
		result.Status = model.StatusAccepted
		result.ActualOutput = stdout
		result.Passed = true
	default:
		result.Status = model.StatusWrongAnswer
		result.ActualOutput = stdout
		result.Diff = outputDiff(tc.ExpectedOutput, stdout)
	}
	return result
}

func outputDiff(expected, actual string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
