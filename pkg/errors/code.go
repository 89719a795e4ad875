package errors

import "net/http"

// ErrorCode identifies a failure class across services and API responses.
//
//	10000-10999 common
//	12000-12999 problem catalog
//	13000-13999 submission and grading
type ErrorCode int

const (
	Success             ErrorCode = 10000
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Canceled            ErrorCode = 10009
	DatabaseError       ErrorCode = 10100
	CacheError          ErrorCode = 10200
	ValidationFailed    ErrorCode = 10300

	ProblemNotFound  ErrorCode = 12000
	TestCaseNotFound ErrorCode = 12100

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmissionRejected     ErrorCode = 13006
	QuotaExceeded          ErrorCode = 13007
	SubmissionInProgress   ErrorCode = 13008
	JudgeUnavailable       ErrorCode = 13100
)

type codeInfo struct {
	message string
	status  int
}

var codes = map[ErrorCode]codeInfo{
	Success:             {"Success", http.StatusOK},
	InternalServerError: {"Internal server error", http.StatusInternalServerError},
	InvalidParams:       {"Invalid parameters", http.StatusBadRequest},
	NotFound:            {"Resource not found", http.StatusNotFound},
	// 499 is the de facto "client closed request" status.
	Canceled:         {"Request canceled", 499},
	DatabaseError:    {"Database operation failed", http.StatusInternalServerError},
	CacheError:       {"Cache operation failed", http.StatusInternalServerError},
	ValidationFailed: {"Validation failed", http.StatusBadRequest},

	ProblemNotFound:  {"Problem not found", http.StatusNotFound},
	TestCaseNotFound: {"Test case not found", http.StatusNotFound},

	SubmissionNotFound:     {"Submission not found", http.StatusNotFound},
	SubmissionCreateFailed: {"Failed to create submission", http.StatusInternalServerError},
	CodeTooLarge:           {"Code is too large", http.StatusBadRequest},
	LanguageNotSupported:   {"Programming language not supported", http.StatusBadRequest},
	SubmissionRejected:     {"Failed to submit code", http.StatusUnprocessableEntity},
	QuotaExceeded:          {"Daily quota exceeded", http.StatusTooManyRequests},
	SubmissionInProgress:   {"A submission is already in progress", http.StatusConflict},
	JudgeUnavailable:       {"Judge service unavailable", http.StatusServiceUnavailable},
}

// Message returns the default caller-facing text for c.
func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// HTTPStatus maps c to a response status. Unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
