package mq

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingProducer struct {
	topic    string
	messages []*Message
}

func (p *recordingProducer) Publish(_ context.Context, topic string, message *Message) error {
	p.topic = topic
	p.messages = append(p.messages, message)
	return nil
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: 3, RetryDelay: time.Millisecond}.withDefaults("grading.stats")
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}
	dlq := &recordingProducer{}
	msg := NewMessage([]byte("x"))

	if err := deliver(context.Background(), opts, handler, msg, dlq); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}
	if msg.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", msg.Attempts)
	}
	if len(dlq.messages) != 0 {
		t.Fatalf("unexpected dead letter publish")
	}
}

func TestDeliverDeadLettersAfterRetries(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "grading.stats.dlq"}.withDefaults("grading.stats")
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		return errors.New("always")
	}
	dlq := &recordingProducer{}
	msg := NewMessage([]byte("x"))

	if err := deliver(context.Background(), opts, handler, msg, dlq); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}
	if dlq.topic != "grading.stats.dlq" || len(dlq.messages) != 1 {
		t.Fatalf("dead letter not published: topic=%q count=%d", dlq.topic, len(dlq.messages))
	}
	if msg.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", msg.Attempts)
	}
}

func TestDeliverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := SubscribeOptions{MaxRetries: 5, RetryDelay: time.Hour, DeadLetterTopic: "dlq"}.withDefaults("t")
	handler := func(context.Context, *Message) error {
		cancel()
		return errors.New("fail")
	}
	dlq := &recordingProducer{}

	if err := deliver(ctx, opts, handler, NewMessage(nil), dlq); err == nil {
		t.Fatalf("expected error on cancel")
	}
	if len(dlq.messages) != 0 {
		t.Fatalf("canceled delivery must not dead-letter")
	}
}

func TestSubscribeOptionsDefaults(t *testing.T) {
	got := SubscribeOptions{}.withDefaults("grading.stats")
	if got.ConsumerGroup != "codeprep-grading.stats" || got.Concurrency != 1 || got.MaxRetries != 3 || got.RetryDelay != time.Second {
		t.Fatalf("defaults = %+v", got)
	}
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	msg := NewMessage([]byte(`{"a":1}`))
	msg.ID = "sub-1"
	msg.Key = "user-9"
	msg.SetHeader("event", "summary")
	msg.Attempts = 2

	km := encode("grading.notifications", msg)
	if km.Topic != "grading.notifications" || string(km.Key) != "user-9" {
		t.Fatalf("topic/key = %q/%q", km.Topic, km.Key)
	}
	got := decode(km)
	if got.ID != "sub-1" || got.Key != "user-9" {
		t.Fatalf("id/key = %q/%q", got.ID, got.Key)
	}
	if v, ok := got.Header("event"); !ok || v != "summary" {
		t.Fatalf("event header = %q, %v", v, ok)
	}
	if _, ok := got.Header(metaID); ok {
		t.Fatalf("reserved header leaked into Headers")
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d", got.Attempts)
	}
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, msg.Timestamp)
	}
	if string(got.Body) != `{"a":1}` {
		t.Fatalf("body = %s", got.Body)
	}
}

func TestEncodeFallsBackToIDForKey(t *testing.T) {
	msg := NewMessage(nil)
	msg.ID = "evt-3"
	if km := encode("t", msg); string(km.Key) != "evt-3" {
		t.Fatalf("key = %q", km.Key)
	}
	if got := decode(encode("t", &Message{Key: "k"})); got.ID != "k" {
		t.Fatalf("id fallback = %q", got.ID)
	}
}
