package mq

import (
	"context"
	"time"
)

// Producer publishes messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers topic messages to registered handlers once started.
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts SubscribeOptions) error
	Start() error
	Stop() error
}

// Queue is a broker connection that both publishes and consumes.
type Queue interface {
	Producer
	Consumer
	Ping(ctx context.Context) error
	Close() error
}

// HandlerFunc processes one message. A non-nil error schedules a redelivery
// until the subscription's retry budget is spent.
type HandlerFunc func(ctx context.Context, message *Message) error

// Message is a broker-neutral envelope.
type Message struct {
	ID string
	// Key picks the partition, so grading events for one user stay ordered.
	Key       string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time
	// Attempts counts failed handler invocations for this delivery.
	Attempts int
}

// NewMessage wraps body in an envelope stamped with the current time.
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   map[string]string{},
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[key] = value
}

// Header returns a header value and whether it was present.
func (m *Message) Header(key string) (string, bool) {
	v, ok := m.Headers[key]
	return v, ok
}

// SubscribeOptions tunes a single subscription.
type SubscribeOptions struct {
	ConsumerGroup string
	// Concurrency is the number of handler workers. Default 1.
	Concurrency int
	// MaxRetries is the number of redeliveries after the first failure. Default 3.
	MaxRetries int
	// RetryDelay is the pause between redeliveries. Default 1s.
	RetryDelay time.Duration
	// DeadLetterTopic receives messages whose retries ran out. Empty drops them.
	DeadLetterTopic string
}

func (o SubscribeOptions) withDefaults(topic string) SubscribeOptions {
	if o.ConsumerGroup == "" {
		o.ConsumerGroup = "codeprep-" + topic
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}
