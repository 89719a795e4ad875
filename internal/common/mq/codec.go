package mq

import (
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope fields travel as reserved headers next to the caller's own.
const (
	metaID       = "codeprep-id"
	metaSentAt   = "codeprep-sent-at"
	metaAttempts = "codeprep-attempts"
)

func encode(topic string, m *Message) kafka.Message {
	sentAt := m.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	headers := make([]kafka.Header, 0, len(m.Headers)+3)
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: metaSentAt, Value: []byte(sentAt.UTC().Format(time.RFC3339Nano))})
	if m.ID != "" {
		headers = append(headers, kafka.Header{Key: metaID, Value: []byte(m.ID)})
	}
	if m.Attempts > 0 {
		headers = append(headers, kafka.Header{Key: metaAttempts, Value: []byte(strconv.Itoa(m.Attempts))})
	}

	key := m.Key
	if key == "" {
		key = m.ID
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   m.Body,
		Headers: headers,
		Time:    sentAt,
	}
}

func decode(km kafka.Message) *Message {
	m := &Message{
		Key:       string(km.Key),
		Body:      km.Value,
		Headers:   make(map[string]string, len(km.Headers)),
		Timestamp: km.Time,
	}
	for _, h := range km.Headers {
		value := string(h.Value)
		switch h.Key {
		case metaID:
			m.ID = value
		case metaSentAt:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				m.Timestamp = ts
			}
		case metaAttempts:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				m.Attempts = n
			}
		default:
			m.Headers[h.Key] = value
		}
	}
	if m.ID == "" {
		m.ID = m.Key
	}
	return m
}
