package mq

import (
	"context"
	"errors"
	"time"

	"codeprep/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fetchBackoff = 200 * time.Millisecond

type subscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context
	dlq     Producer

	reader *kafka.Reader
	cancel context.CancelFunc
	group  *errgroup.Group
}

// start spawns one fetch loop feeding opts.Concurrency workers. Offsets are
// committed after the handler finishes, whether it succeeded or was
// dead-lettered, so a poison message never blocks the partition.
func (s *subscription) start(cfg kafka.ReaderConfig) {
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.reader = kafka.NewReader(cfg)
	s.group = &errgroup.Group{}

	fetched := make(chan kafka.Message)
	s.group.Go(func() error {
		defer close(fetched)
		for {
			km, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn(ctx, "kafka fetch failed", zap.String("topic", s.topic), zap.Error(err))
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(fetchBackoff):
				}
				continue
			}
			select {
			case fetched <- km:
			case <-ctx.Done():
				return nil
			}
		}
	})

	for w := 0; w < s.opts.Concurrency; w++ {
		s.group.Go(func() error {
			for km := range fetched {
				_ = deliver(ctx, s.opts, s.handler, decode(km), s.dlq)
				if err := s.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
					logger.Warn(ctx, "kafka commit failed",
						zap.String("topic", s.topic),
						zap.Int64("offset", km.Offset),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
}

func (s *subscription) stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	_ = s.group.Wait()
	err := s.reader.Close()
	s.cancel, s.reader, s.group = nil, nil, nil
	return err
}

// deliver runs handler until it succeeds or opts.MaxRetries redeliveries fail,
// then hands the message to the dead letter topic if one is configured.
func deliver(ctx context.Context, opts SubscribeOptions, handler HandlerFunc, m *Message, dlq Producer) error {
	backoff := retry.WithMaxRetries(uint64(opts.MaxRetries), retry.NewConstant(opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := handler(ctx, m); err != nil {
			m.Attempts++
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("message_id", m.ID),
		zap.Int("attempts", m.Attempts),
		zap.Error(err),
	}
	if opts.DeadLetterTopic == "" || dlq == nil {
		logger.Error(ctx, "message dropped after retries", fields...)
		return err
	}
	logger.Error(ctx, "message dead-lettered after retries", append(fields, zap.String("dlq", opts.DeadLetterTopic))...)
	if pubErr := dlq.Publish(ctx, opts.DeadLetterTopic, m); pubErr != nil {
		logger.Error(ctx, "dead letter publish failed", zap.String("message_id", m.ID), zap.Error(pubErr))
	}
	return err
}
