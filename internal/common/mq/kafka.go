package mq

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var errQueueClosed = errors.New("message queue is closed")

// KafkaConfig configures the Kafka-backed queue.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientId"`

	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	MinBytes int           `yaml:"minBytes"`
	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		// Grading events are few and latency-sensitive.
		c.BatchTimeout = 10 * time.Millisecond
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 1 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// KafkaQueue publishes grading events and runs the consumers registered on it.
type KafkaQueue struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer
	writer *kafka.Writer

	mu      sync.Mutex
	subs    []*subscription
	running bool
	closed  bool
}

// NewKafkaQueue builds a queue. No broker connection is made until the first
// publish, Ping, or Start.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()

	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
	return &KafkaQueue{cfg: cfg, dialer: dialer, writer: writer}, nil
}

// Publish writes message to topic synchronously.
func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	switch {
	case topic == "":
		return errors.New("topic is required")
	case message == nil:
		return errors.New("message is nil")
	}
	return q.writer.WriteMessages(ctx, encode(topic, message))
}

// Subscribe registers handler for topic. Subscriptions added after Start begin
// consuming immediately.
func (q *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &subscription{
		topic:   topic,
		handler: handler,
		opts:    opts.withDefaults(topic),
		parent:  ctx,
		dlq:     q,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.subs = append(q.subs, sub)
	if q.running {
		sub.start(q.readerConfig(sub))
	}
	return nil
}

// Start launches every registered subscription.
func (q *KafkaQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	if q.running {
		return nil
	}
	for _, sub := range q.subs {
		sub.start(q.readerConfig(sub))
	}
	q.running = true
	return nil
}

// Stop cancels every subscription and waits for in-flight handlers.
func (q *KafkaQueue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var errs []error
	for _, sub := range q.subs {
		if err := sub.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	q.running = false
	return errors.Join(errs...)
}

// Ping dials the first broker.
func (q *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := q.dialer.DialContext(ctx, "tcp", q.cfg.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

// Close stops consumers and flushes the writer. It is safe to call twice.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	return errors.Join(q.Stop(), q.writer.Close())
}

func (q *KafkaQueue) readerConfig(sub *subscription) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     q.cfg.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		MinBytes:    q.cfg.MinBytes,
		MaxBytes:    q.cfg.MaxBytes,
		MaxWait:     q.cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
		Dialer:      q.dialer,
	}
}

var _ Queue = (*KafkaQueue)(nil)
