package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/db"
	"codeprep/internal/grading/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionDuplicate = errors.New("submission already exists")
)

// SubmissionRepository persists graded submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, submissionID string) (*model.Submission, error)
	// UpdateResults finalizes a submission with one statement.
	UpdateResults(ctx context.Context, submissionID string, result model.FinalResult) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL and a Redis read cache.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, problem_id, user_id, language, language_id, mode, source_key, judge_ref, " +
	"status, results, passed_count, total_count, created_at, finished_at"

// Create inserts a pending submission.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}
	if !submission.Mode.Valid() {
		return errors.New("mode must be run or submit")
	}
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO submissions
		(id, problem_id, user_id, language, language_id, mode, source_key, status, total_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		submission.ID,
		submission.ProblemID,
		submission.UserID,
		submission.Language,
		submission.LanguageID,
		string(submission.Mode),
		submission.SourceKey,
		string(submission.Status),
		submission.TotalCount,
		submission.CreatedAt,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrSubmissionDuplicate
		}
		return err
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache == nil {
		return r.getByIDFromDB(ctx, submissionID)
	}
	submission, err := cache.GetJSONWithCached[model.Submission](
		ctx,
		r.cache,
		submissionCacheKey(submissionID),
		r.ttl,
		r.emptyTTL,
		func(ctx context.Context) (*model.Submission, error) {
			submission, err := r.getByIDFromDB(ctx, submissionID)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return submission, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

// persistedPayload is the JSON stored next to the verdict columns.
type persistedPayload struct {
	Results         []model.PersistedResult `json:"results"`
	ExpectedOutputs []string                `json:"expectedOutputs"`
	Details         []model.TestCaseResult  `json:"details"`
}

// UpdateResults writes the final verdict and drops the cached row.
func (r *MySQLSubmissionRepository) UpdateResults(ctx context.Context, submissionID string, result model.FinalResult) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	payload, err := json.Marshal(persistedPayload{
		Results:         result.PersistedResults(),
		ExpectedOutputs: result.ExpectedOutputs,
		Details:         result.Results,
	})
	if err != nil {
		return err
	}
	finishedAt := result.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	update := func(ctx context.Context) error {
		query := `
			UPDATE submissions
			SET status = ?, judge_ref = ?, results = ?, passed_count = ?, total_count = ?, finished_at = ?
			WHERE id = ?
		`
		res, err := r.db.Exec(ctx, query, string(result.Status), result.JudgeRef, string(payload), result.Passed, result.Total, finishedAt, submissionID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrSubmissionNotFound
		}
		return nil
	}
	if r.cache == nil {
		return update(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, submissionCacheKey(submissionID), update)
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, submissionID string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)

	var (
		submission model.Submission
		mode       string
		status     string
		judgeRef   sql.NullString
		results    sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Language,
		&submission.LanguageID,
		&mode,
		&submission.SourceKey,
		&judgeRef,
		&status,
		&results,
		&submission.PassedCount,
		&submission.TotalCount,
		&submission.CreatedAt,
		&finishedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	submission.Mode = model.Mode(mode)
	submission.Status = model.Status(status)
	submission.JudgeRef = judgeRef.String
	if finishedAt.Valid {
		t := finishedAt.Time
		submission.FinishedAt = &t
	}
	if results.Valid && results.String != "" {
		var payload persistedPayload
		if err := json.Unmarshal([]byte(results.String), &payload); err != nil {
			return nil, err
		}
		submission.Results = payload.Details
	}
	return &submission, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}
