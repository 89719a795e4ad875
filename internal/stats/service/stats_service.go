package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/mq"
	"codeprep/internal/grading/model"
	appErr "codeprep/pkg/errors"
	"codeprep/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	statsKeyPrefix     = "user:stats:"
	solvedKeyPrefix    = "user:solved:"
	processedKeyPrefix = "stats:processed:"

	fieldAcceptedRun    = "accepted_run"
	fieldAcceptedSubmit = "accepted_submit"

	defaultProcessedTTL = 7 * 24 * time.Hour
)

// UserStats is the per-user solve summary.
type UserStats struct {
	UserID          string `json:"user_id"`
	AcceptedRuns    int64  `json:"accepted_runs"`
	AcceptedSubmits int64  `json:"accepted_submits"`
	SolvedProblems  int64  `json:"solved_problems"`
}

// StatsService keeps user solve counters in Redis.
type StatsService struct {
	cache        cache.Cache
	processedTTL time.Duration
}

func NewStatsService(cacheClient cache.Cache, processedTTL time.Duration) (*StatsService, error) {
	if cacheClient == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if processedTTL <= 0 {
		processedTTL = defaultProcessedTTL
	}
	return &StatsService{cache: cacheClient, processedTTL: processedTTL}, nil
}

// HandleStatsMessage applies one stats event. Redelivered events are skipped.
func (s *StatsService) HandleStatsMessage(ctx context.Context, message *mq.Message) error {
	if message == nil {
		return nil
	}
	var event model.StatsEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		// Malformed payloads are dropped, not retried.
		logger.Warn(ctx, "drop malformed stats event", zap.String("message_id", message.ID), zap.Error(err))
		return nil
	}
	if event.UserID == "" || event.SubmissionID == "" {
		logger.Warn(ctx, "drop incomplete stats event", zap.String("message_id", message.ID))
		return nil
	}

	first, err := s.cache.SetNX(ctx, processedKeyPrefix+event.SubmissionID, "1", s.processedTTL)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	field := fieldAcceptedRun
	if event.Mode == model.ModeSubmit {
		field = fieldAcceptedSubmit
	}
	// SAdd is idempotent and goes first; the counter is the only non-repeatable write.
	// Any failure releases the processed marker so redelivery can finish the job.
	if event.Mode == model.ModeSubmit {
		if _, err := s.cache.SAdd(ctx, solvedKeyPrefix+event.UserID, strconv.FormatInt(event.ProblemID, 10)); err != nil {
			s.release(ctx, event.SubmissionID)
			return err
		}
	}
	if _, err := s.cache.HIncrBy(ctx, statsKeyPrefix+event.UserID, field, 1); err != nil {
		s.release(ctx, event.SubmissionID)
		return err
	}
	logger.Debug(ctx, "stats updated",
		zap.String("user_id", event.UserID),
		zap.String("field", field),
		zap.Int64("problem_id", event.ProblemID),
	)
	return nil
}

func (s *StatsService) release(ctx context.Context, submissionID string) {
	if err := s.cache.Del(context.WithoutCancel(ctx), processedKeyPrefix+submissionID); err != nil {
		logger.Warn(ctx, "release stats marker failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

// GetStats returns the counters for userID; unknown users get zeros.
func (s *StatsService) GetStats(ctx context.Context, userID string) (UserStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserStats{}, appErr.ValidationError("user_id", "required")
	}
	fields, err := s.cache.HGetAll(ctx, statsKeyPrefix+userID)
	if err != nil {
		return UserStats{}, appErr.Wrapf(err, appErr.CacheError, "read user stats failed")
	}
	solved, err := s.cache.SCard(ctx, solvedKeyPrefix+userID)
	if err != nil {
		return UserStats{}, appErr.Wrapf(err, appErr.CacheError, "read solved problems failed")
	}
	return UserStats{
		UserID:          userID,
		AcceptedRuns:    parseCount(fields[fieldAcceptedRun]),
		AcceptedSubmits: parseCount(fields[fieldAcceptedSubmit]),
		SolvedProblems:  solved,
	}, nil
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
