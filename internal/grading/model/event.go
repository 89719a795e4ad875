package model

import "time"

// NotificationKind selects how a summary is presented.
type NotificationKind string

const (
	NotificationSuccess      NotificationKind = "success"
	NotificationFailure      NotificationKind = "failure"
	NotificationCompileError NotificationKind = "compile_error"
)

// Notification is the single user-facing summary emitted per action.
type Notification struct {
	SubmissionID string           `json:"submission_id"`
	UserID       string           `json:"user_id"`
	ProblemID    int64            `json:"problem_id"`
	Mode         Mode             `json:"mode"`
	Kind         NotificationKind `json:"kind"`
	Status       Status           `json:"status"`
	Message      string           `json:"message"`
	Passed       int              `json:"passed"`
	Total        int              `json:"total"`
	CreatedAt    time.Time        `json:"created_at"`
}

// StatsEvent tells downstream consumers that a user's solve stats changed.
type StatsEvent struct {
	SubmissionID string    `json:"submission_id"`
	UserID       string    `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	Mode         Mode      `json:"mode"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
}
