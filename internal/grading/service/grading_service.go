package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/storage"
	"codeprep/internal/grading/model"
	"codeprep/internal/grading/repository"
	judgemodel "codeprep/internal/judge/model"
	problemmodel "codeprep/internal/problem/model"
	problemrepo "codeprep/internal/problem/repository"
	appErr "codeprep/pkg/errors"
	"codeprep/pkg/utils/contextkey"
	"codeprep/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	quotaKeyPrefix         = "grading:quota:"
	inflightKeyPrefix      = "grading:inflight:"
	defaultSourcePrefix    = "submissions"
	defaultPollConcurrency = 16
	defaultGuardMargin     = 30 * time.Second
)

var (
	DefaultRunBudget    = Budget{MaxAttempts: 15, Interval: time.Second}
	DefaultSubmitBudget = Budget{MaxAttempts: 10, Interval: time.Second}
)

// JudgeClient submits batches and reads per-token results.
type JudgeClient interface {
	ResultFetcher
	SubmitBatch(ctx context.Context, req judgemodel.BatchRequest) (judgemodel.BatchResult, error)
}

// SourceArchive stores merged source code out of the database.
type SourceArchive interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// BudgetConfig holds the poll budget per mode.
type BudgetConfig struct {
	Run    Budget `yaml:"run"`
	Submit Budget `yaml:"submit"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// Config holds grading service dependencies and settings.
type Config struct {
	Judge       JudgeClient
	Problems    problemrepo.ProblemRepository
	Submissions repository.SubmissionRepository
	Archive     SourceArchive
	Cache       cache.Cache
	Notifier    Notifier

	// Languages maps a language name to the judge's numeric language id.
	Languages       map[string]int
	Budgets         BudgetConfig
	PollConcurrency int
	// DailyQuota caps run+submit actions per user per UTC day. Zero disables it.
	DailyQuota  int
	GuardMargin time.Duration
	// JudgeCallBound is the worst-case duration of one judge HTTP call.
	JudgeCallBound  time.Duration
	SourceKeyPrefix string
	MaxCodeBytes    int
	Timeouts        TimeoutConfig

	Now func() time.Time
}

// GradingService runs code against a problem's test cases and records the verdict.
type GradingService struct {
	judge       JudgeClient
	poller      *Poller
	problems    problemrepo.ProblemRepository
	submissions repository.SubmissionRepository
	archive     SourceArchive
	cache       cache.Cache
	notifier    Notifier
	validate    *validator.Validate

	languages       map[string]int
	budgets         BudgetConfig
	pollConcurrency int
	dailyQuota      int
	guardMargin     time.Duration
	judgeCallBound  time.Duration
	sourceKeyPrefix string
	maxCodeBytes    int
	timeouts        TimeoutConfig
	now             func() time.Time
}

// GradeInput describes a run or submit request.
type GradeInput struct {
	UserID     string `json:"user_id" validate:"required,max=64"`
	ProblemID  int64  `json:"problem_id" validate:"gt=0"`
	Language   string `json:"language" validate:"required,max=32"`
	SourceCode string `json:"source_code" validate:"required"`
}

// NewGradingService creates a new grading service.
func NewGradingService(cfg Config) (*GradingService, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Archive == nil {
		return nil, fmt.Errorf("source archive is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("language map is required")
	}
	languages := make(map[string]int, len(cfg.Languages))
	for name, id := range cfg.Languages {
		languages[normalizeLanguage(name)] = id
	}
	if cfg.Budgets.Run.MaxAttempts <= 0 {
		cfg.Budgets.Run = DefaultRunBudget
	}
	if cfg.Budgets.Submit.MaxAttempts <= 0 {
		cfg.Budgets.Submit = DefaultSubmitBudget
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = defaultPollConcurrency
	}
	if cfg.GuardMargin <= 0 {
		cfg.GuardMargin = defaultGuardMargin
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &GradingService{
		judge:           cfg.Judge,
		poller:          NewPoller(cfg.Judge),
		problems:        cfg.Problems,
		submissions:     cfg.Submissions,
		archive:         cfg.Archive,
		cache:           cfg.Cache,
		notifier:        cfg.Notifier,
		validate:        newValidator(),
		languages:       languages,
		budgets:         cfg.Budgets,
		pollConcurrency: cfg.PollConcurrency,
		dailyQuota:      cfg.DailyQuota,
		guardMargin:     cfg.GuardMargin,
		judgeCallBound:  cfg.JudgeCallBound,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		maxCodeBytes:    cfg.MaxCodeBytes,
		timeouts:        cfg.Timeouts,
		now:             cfg.Now,
	}, nil
}

// Run grades code against the problem's sample cases.
func (s *GradingService) Run(ctx context.Context, input GradeInput) (*model.GradeOutcome, error) {
	return s.grade(ctx, model.ModeRun, input)
}

// Submit grades code against every test case of the problem.
func (s *GradingService) Submit(ctx context.Context, input GradeInput) (*model.GradeOutcome, error) {
	return s.grade(ctx, model.ModeSubmit, input)
}

// GetSubmission returns a stored submission.
func (s *GradingService) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissions.GetByID(ctxDB.ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

// GetSource returns a stored submission with its archived merged source.
func (s *GradingService) GetSource(ctx context.Context, submissionID string) (*model.Submission, error) {
	submission, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.SourceKey == "" {
		return nil, appErr.New(appErr.NotFound).WithMessage("source not archived")
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	source, err := s.archive.Get(ctxStorage.ctx, submission.SourceKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, appErr.New(appErr.NotFound).WithMessage("source not archived")
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "read source failed")
	}
	submission.SourceCode = string(source)
	return submission, nil
}

func (s *GradingService) grade(ctx context.Context, mode model.Mode, input GradeInput) (*model.GradeOutcome, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	language := normalizeLanguage(input.Language)
	languageID, ok := s.languages[language]
	if !ok || languageID <= 0 {
		return nil, appErr.ConfigurationError(input.Language)
	}
	ctx = context.WithValue(ctx, contextkey.UserID, input.UserID)

	budget := s.budgetFor(mode)
	release, err := s.acquireGuard(ctx, mode, input.UserID, budget)
	if err != nil {
		return nil, err
	}
	defer release()

	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	cases := problem.Cases(mode == model.ModeRun)
	if len(cases) == 0 {
		return nil, appErr.New(appErr.TestCaseNotFound).WithMessage("no test cases found for this problem")
	}
	// Only actions that reach the judge count against the daily quota.
	if err := s.consumeQuota(ctx, input.UserID); err != nil {
		return nil, err
	}

	submission := &model.Submission{
		ID:         uuid.NewString(),
		ProblemID:  input.ProblemID,
		UserID:     input.UserID,
		Language:   language,
		LanguageID: languageID,
		Mode:       mode,
		SourceCode: mergeSource(problem.Template(language), input.SourceCode),
		Status:     model.StatusPending,
		TotalCount: len(cases),
		CreatedAt:  s.now(),
	}
	submission.SourceKey = s.buildSourceKey(submission.ID)
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submission.ID)

	if err := s.archiveSource(ctx, submission); err != nil {
		return nil, err
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		return nil, err
	}

	stdin := make([]string, len(cases))
	expected := make([]string, len(cases))
	for i, tc := range cases {
		stdin[i] = tc.Input
		expected[i] = tc.ExpectedOutput
	}
	batch, err := s.judge.SubmitBatch(ctx, judgemodel.BatchRequest{
		SourceCode:      submission.SourceCode,
		LanguageID:      languageID,
		Stdin:           stdin,
		ExpectedOutputs: expected,
	})
	if err == nil && len(batch.Tokens) != len(cases) {
		err = appErr.New(appErr.SubmissionRejected).WithMessage("judge returned an unexpected number of tokens")
	}
	if err != nil {
		s.finalizeRejected(ctx, submission, expected)
		return nil, err
	}
	submission.JudgeRef = batch.JudgeRef

	logger.Info(ctx, "batch submitted",
		zap.String("mode", string(mode)),
		zap.String("language", language),
		zap.Int("cases", len(cases)),
		zap.String("judge_ref", batch.JudgeRef),
	)

	results := s.pollAll(ctx, batch.Tokens, cases, budget)
	summary := Aggregate(results)

	finishedAt := s.now()
	submission.Results = results
	submission.Status = summary.Status
	submission.PassedCount = summary.Passed
	submission.TotalCount = summary.Total
	submission.FinishedAt = &finishedAt

	outcome := &model.GradeOutcome{Submission: submission, Summary: summary}

	canceled := ctx.Err() != nil
	persistCtx := ctx
	if canceled {
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := s.persist(persistCtx, submission, expected); err != nil {
		outcome.PersistError = err.Error()
	}
	if canceled {
		logger.Info(persistCtx, "grading canceled", zap.String("mode", string(mode)))
		return nil, appErr.Wrapf(ctx.Err(), appErr.Canceled, "grading canceled")
	}

	outcome.Notification = s.notify(ctx, submission, summary)
	logger.Info(ctx, "grading finished",
		zap.String("mode", string(mode)),
		zap.String("status", string(summary.Status)),
		zap.Int("passed", summary.Passed),
		zap.Int("total", summary.Total),
	)
	return outcome, nil
}

// pollAll polls every token concurrently and stores each result at its case index.
func (s *GradingService) pollAll(ctx context.Context, tokens []judgemodel.Token, cases []problemmodel.TestCase, budget Budget) []model.TestCaseResult {
	results := make([]model.TestCaseResult, len(tokens))
	var g errgroup.Group
	g.SetLimit(s.pollConcurrency)
	for i := range tokens {
		g.Go(func() error {
			outcome := s.poller.Poll(ctx, tokens[i], budget)
			results[i] = Classify(i, outcome, cases[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *GradingService) validateInput(input GradeInput) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return appErr.ValidationError(fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return appErr.Wrap(err, appErr.ValidationFailed)
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if s.maxCodeBytes > 0 && len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *GradingService) consumeQuota(ctx context.Context, userID string) error {
	if s.dailyQuota <= 0 {
		return nil
	}
	now := s.now().UTC()
	key := quotaKeyPrefix + userID + ":" + now.Format("20060102")
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	count, err := s.cache.IncrWithExpireAt(ctxCache.ctx, key, endOfDay)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "quota check failed")
	}
	if count > int64(s.dailyQuota) {
		return appErr.New(appErr.QuotaExceeded).WithDetail("limit", s.dailyQuota)
	}
	return nil
}

// acquireGuard allows one in-flight action per user and mode. The returned
// release func is safe to call on every exit path.
func (s *GradingService) acquireGuard(ctx context.Context, mode model.Mode, userID string, budget Budget) (func(), error) {
	key := inflightKeyPrefix + string(mode) + ":" + userID
	owner := uuid.NewString()
	ttl := s.guardTTL(budget)

	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	ok, err := s.cache.TryLock(ctxCache.ctx, key, owner, ttl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "acquire in-flight guard failed")
	}
	if !ok {
		return nil, appErr.New(appErr.SubmissionInProgress).WithDetail("mode", string(mode))
	}
	return func() {
		releaseCtx := withTimeout(context.WithoutCancel(ctx), s.timeouts.Cache)
		defer releaseCtx.cancel()
		if err := s.cache.Unlock(releaseCtx.ctx, key, owner); err != nil {
			logger.Warn(ctx, "release in-flight guard failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// guardTTL covers the batch submit plus every poll attempt, each of which may
// take a full judge call on top of its interval.
func (s *GradingService) guardTTL(budget Budget) time.Duration {
	b := budget.normalized()
	return s.judgeCallBound + budget.Total() + time.Duration(b.MaxAttempts)*s.judgeCallBound + s.guardMargin
}

func (s *GradingService) loadProblem(ctx context.Context, problemID int64) (*problemmodel.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problems.GetByID(ctxDB.ctx, problemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	return problem, nil
}

func (s *GradingService) archiveSource(ctx context.Context, submission *model.Submission) error {
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.archive.Put(ctxStorage.ctx, submission.SourceKey, []byte(submission.SourceCode)); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "archive source failed")
	}
	return nil
}

func (s *GradingService) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissions.Create(ctxDB.ctx, submission); err != nil {
		s.discardSource(ctx, submission.SourceKey)
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

// discardSource removes an archived source whose submission row was never written.
func (s *GradingService) discardSource(ctx context.Context, key string) {
	ctxStorage := withTimeout(context.WithoutCancel(ctx), s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.archive.Delete(ctxStorage.ctx, key); err != nil {
		logger.Warn(ctx, "discard orphaned source failed", zap.String("source_key", key), zap.Error(err))
	}
}

// persist writes the final verdict. Failure is logged and reported, never fatal.
func (s *GradingService) persist(ctx context.Context, submission *model.Submission, expected []string) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	err := s.submissions.UpdateResults(ctxDB.ctx, submission.ID, model.FinalResult{
		Status:          submission.Status,
		JudgeRef:        submission.JudgeRef,
		Results:         submission.Results,
		ExpectedOutputs: expected,
		Passed:          submission.PassedCount,
		Total:           submission.TotalCount,
		FinishedAt:      *submission.FinishedAt,
	})
	if err != nil {
		logger.Error(ctx, "persist grading result failed",
			zap.String("event", "persist_failed"),
			zap.String("status", string(submission.Status)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// finalizeRejected marks a submission the judge never accepted as a server error.
func (s *GradingService) finalizeRejected(ctx context.Context, submission *model.Submission, expected []string) {
	finishedAt := s.now()
	submission.Status = model.StatusServerError
	submission.FinishedAt = &finishedAt
	_ = s.persist(context.WithoutCancel(ctx), submission, expected)
}

func (s *GradingService) notify(ctx context.Context, submission *model.Submission, summary model.Summary) *model.Notification {
	notification := model.Notification{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Mode:         submission.Mode,
		Kind:         notificationKind(summary.Status),
		Status:       summary.Status,
		Message:      summary.Message,
		Passed:       summary.Passed,
		Total:        summary.Total,
		CreatedAt:    s.now(),
	}

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.notifier.NotifySummary(ctxMQ.ctx, notification); err != nil {
		logger.Warn(ctx, "publish summary failed", zap.Error(err))
	}
	if summary.Status == model.StatusAccepted {
		event := model.StatsEvent{
			SubmissionID: submission.ID,
			UserID:       submission.UserID,
			ProblemID:    submission.ProblemID,
			Mode:         submission.Mode,
			Language:     submission.Language,
			CreatedAt:    notification.CreatedAt,
		}
		if err := s.notifier.NotifyStatsUpdated(ctxMQ.ctx, event); err != nil {
			logger.Warn(ctx, "publish stats event failed", zap.Error(err))
		}
	}
	return &notification
}

func (s *GradingService) budgetFor(mode model.Mode) Budget {
	if mode == model.ModeRun {
		return s.budgets.Run
	}
	return s.budgets.Submit
}

func (s *GradingService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.code.zst", s.sourceKeyPrefix, submissionID)
}

// mergeSource joins the non-empty parts of template top, user code and template bottom.
func mergeSource(tpl problemmodel.Template, code string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{tpl.TopCode, code, tpl.BottomCode} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

func normalizeLanguage(name string) string {
	return problemmodel.NormalizeLanguage(name)
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
