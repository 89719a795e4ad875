package contextkey

// Key is the type of every context key the logger reads.
type Key string

const (
	TraceID      Key = "trace_id"
	RequestID    Key = "request_id"
	UserID       Key = "user_id"
	SubmissionID Key = "submission_id"
)
