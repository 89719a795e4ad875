package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/db"
	"codeprep/internal/problem/model"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:grading:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// ProblemRepository loads problems for grading.
type ProblemRepository interface {
	GetByID(ctx context.Context, problemID int64) (*model.Problem, error)
}

// MySQLProblemRepository reads problems, their test cases and templates from MySQL,
// caching the assembled problem in Redis.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

// GetByID returns the problem or ErrProblemNotFound.
func (r *MySQLProblemRepository) GetByID(ctx context.Context, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, ErrProblemNotFound
	}
	if r.cache == nil {
		return r.getFromDB(ctx, problemID)
	}
	problem, err := cache.GetJSONWithCached[model.Problem](
		ctx,
		r.cache,
		problemKey(problemID),
		r.ttl,
		r.emptyTTL,
		func(ctx context.Context) (*model.Problem, error) {
			problem, err := r.getFromDB(ctx, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return problem, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, problemID int64) (*model.Problem, error) {
	var problem *model.Problem
	err := r.db.Snapshot(ctx, func(q db.Querier) error {
		var err error
		problem, err = loadProblem(ctx, q, problemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return problem, nil
}

func loadProblem(ctx context.Context, q db.Querier, problemID int64) (*model.Problem, error) {
	problem := &model.Problem{Templates: make(map[string]model.Template)}
	row := q.QueryRow(ctx, "SELECT id, title FROM problems WHERE id = ? LIMIT 1", problemID)
	if err := row.Scan(&problem.ID, &problem.Title); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	cases, err := q.Query(ctx, `
		SELECT ordinal, input, expected_output, is_sample
		FROM problem_test_cases
		WHERE problem_id = ?
		ORDER BY ordinal`, problemID)
	if err != nil {
		return nil, err
	}
	defer cases.Close()
	for cases.Next() {
		var tc model.TestCase
		if err := cases.Scan(&tc.Ordinal, &tc.Input, &tc.ExpectedOutput, &tc.IsSample); err != nil {
			return nil, err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	if err := cases.Err(); err != nil {
		return nil, err
	}

	templates, err := q.Query(ctx,
		"SELECT language, top_code, bottom_code FROM problem_templates WHERE problem_id = ?", problemID)
	if err != nil {
		return nil, err
	}
	defer templates.Close()
	for templates.Next() {
		var (
			language string
			tpl      model.Template
		)
		if err := templates.Scan(&language, &tpl.TopCode, &tpl.BottomCode); err != nil {
			return nil, err
		}
		problem.Templates[model.NormalizeLanguage(language)] = tpl
	}
	return problem, templates.Err()
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}
