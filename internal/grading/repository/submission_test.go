package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/db"
	"codeprep/internal/grading/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	row      []interface{}
	execs    []execCall
	execErr  error
	affected int64
	reads    int
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) db.Row {
	f.reads++
	if f.row == nil {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{values: f.row}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{affected: f.affected}, nil
}

func (f *fakeDB) Snapshot(context.Context, func(q db.Querier) error) error {
	return errors.New("not implemented")
}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) Close() error { return nil }

type fakeResult struct {
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }

func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, v := range r.values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func storedRow(results string) []interface{} {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return []interface{}{
		"sub-1", int64(7), "user-1", "python", 71, "submit", "submissions/sub-1/source.code.zst",
		sql.NullString{String: "judge-9", Valid: true},
		"accepted",
		sql.NullString{String: results, Valid: results != ""},
		2, 2, created,
		sql.NullTime{Time: created.Add(time.Second), Valid: true},
	}
}

func TestSubmissionRepositoryCreate(t *testing.T) {
	database := &fakeDB{affected: 1}
	repo := NewSubmissionRepository(database, newTestCache(t))

	sub := &model.Submission{ID: "sub-1", ProblemID: 7, UserID: "user-1", Language: "python", LanguageID: 71, Mode: model.ModeRun}
	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.Status != model.StatusPending || sub.CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", sub)
	}
	if len(database.execs) != 1 || !strings.Contains(database.execs[0].query, "INSERT INTO submissions") {
		t.Fatalf("execs = %+v", database.execs)
	}

	bad := &model.Submission{ID: "sub-2", ProblemID: 7, UserID: "user-1", Mode: "debug"}
	if err := repo.Create(context.Background(), bad); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestSubmissionRepositoryCreateDuplicate(t *testing.T) {
	database := &fakeDB{execErr: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'sub-1' for key 'PRIMARY'"}}
	repo := NewSubmissionRepository(database, nil)

	sub := &model.Submission{ID: "sub-1", ProblemID: 7, UserID: "user-1", Mode: model.ModeSubmit}
	if err := repo.Create(context.Background(), sub); !errors.Is(err, ErrSubmissionDuplicate) {
		t.Fatalf("err = %v, want ErrSubmissionDuplicate", err)
	}
}

func TestSubmissionRepositoryGetByIDCached(t *testing.T) {
	payload, _ := json.Marshal(persistedPayload{
		Results: []model.PersistedResult{{Status: model.PersistedStatus{ID: 3}, Stdout: "1", Time: "0.01", Memory: "100"}},
		Details: []model.TestCaseResult{{Index: 0, Passed: true, Status: model.StatusAccepted}, {Index: 1, Passed: true, Status: model.StatusAccepted}},
	})
	database := &fakeDB{row: storedRow(string(payload))}
	repo := NewSubmissionRepository(database, newTestCache(t))

	got, err := repo.GetByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Mode != model.ModeSubmit || got.Status != model.StatusAccepted || got.JudgeRef != "judge-9" {
		t.Fatalf("submission = %+v", got)
	}
	if got.FinishedAt == nil || len(got.Results) != 2 {
		t.Fatalf("results/finishedAt not decoded: %+v", got)
	}

	if _, err := repo.GetByID(context.Background(), "sub-1"); err != nil {
		t.Fatalf("cached GetByID: %v", err)
	}
	if database.reads != 1 {
		t.Fatalf("reads = %d, want 1", database.reads)
	}
}

func TestSubmissionRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewSubmissionRepository(&fakeDB{}, newTestCache(t))
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("err = %v, want ErrSubmissionNotFound", err)
	}
}

func TestSubmissionRepositoryUpdateResults(t *testing.T) {
	database := &fakeDB{affected: 1, row: storedRow("")}
	c := newTestCache(t)
	repo := NewSubmissionRepository(database, c)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "sub-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	final := model.FinalResult{
		Status:   model.StatusWrongAnswer,
		JudgeRef: "judge-9",
		Results: []model.TestCaseResult{
			{Index: 0, ActualOutput: "1", Passed: true, Status: model.StatusAccepted, Runtime: "0.01", Memory: "10", JudgeStatusID: 3},
			{Index: 1, ActualOutput: "3", Status: model.StatusWrongAnswer, Runtime: "0.02", Memory: "11", JudgeStatusID: 4},
		},
		ExpectedOutputs: []string{"1", "2"},
		Passed:          1,
		Total:           2,
	}
	if err := repo.UpdateResults(ctx, "sub-1", final); err != nil {
		t.Fatalf("UpdateResults: %v", err)
	}
	if len(database.execs) != 1 {
		t.Fatalf("exec count = %d, want a single update", len(database.execs))
	}
	call := database.execs[0]
	if !strings.Contains(call.query, "UPDATE submissions") || call.args[len(call.args)-1] != "sub-1" {
		t.Fatalf("update = %+v", call)
	}

	var stored struct {
		Results []struct {
			Status struct {
				ID int `json:"id"`
			} `json:"status"`
			Stdout string `json:"stdout"`
			Time   string `json:"time"`
			Memory string `json:"memory"`
		} `json:"results"`
		ExpectedOutputs []string `json:"expectedOutputs"`
	}
	if err := json.Unmarshal([]byte(call.args[2].(string)), &stored); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(stored.Results) != 2 || stored.Results[1].Status.ID != 4 || stored.Results[1].Stdout != "3" {
		t.Fatalf("stored results = %+v", stored.Results)
	}
	if len(stored.ExpectedOutputs) != 2 || stored.ExpectedOutputs[1] != "2" {
		t.Fatalf("expected outputs = %+v", stored.ExpectedOutputs)
	}

	if cached, _ := c.Get(ctx, submissionCacheKey("sub-1")); cached != "" {
		t.Fatalf("cache not invalidated: %q", cached)
	}
}

func TestSubmissionRepositoryUpdateResultsMissingRow(t *testing.T) {
	repo := NewSubmissionRepository(&fakeDB{affected: 0}, nil)
	err := repo.UpdateResults(context.Background(), "gone", model.FinalResult{Status: model.StatusAccepted})
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("err = %v, want ErrSubmissionNotFound", err)
	}
}
