package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"codeprep/internal/common/mq"
	"codeprep/internal/grading/model"
)

const (
	DefaultNotificationTopic = "grading.notifications"
	DefaultStatsTopic        = "grading.stats"

	headerEvent       = "event"
	eventSummary      = "summary"
	eventStatsUpdated = "stats_updated"
)

// Notifier delivers grading events to the user and to stats consumers.
type Notifier interface {
	NotifySummary(ctx context.Context, n model.Notification) error
	NotifyStatsUpdated(ctx context.Context, e model.StatsEvent) error
}

// MQNotifier publishes notifications as JSON messages keyed by user id.
type MQNotifier struct {
	producer          mq.Producer
	notificationTopic string
	statsTopic        string
}

// NewMQNotifier creates a notifier; empty topics fall back to the defaults.
func NewMQNotifier(producer mq.Producer, notificationTopic, statsTopic string) (*MQNotifier, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if notificationTopic == "" {
		notificationTopic = DefaultNotificationTopic
	}
	if statsTopic == "" {
		statsTopic = DefaultStatsTopic
	}
	return &MQNotifier{
		producer:          producer,
		notificationTopic: notificationTopic,
		statsTopic:        statsTopic,
	}, nil
}

func (n *MQNotifier) NotifySummary(ctx context.Context, notification model.Notification) error {
	return n.publish(ctx, n.notificationTopic, eventSummary, notification.SubmissionID, notification.UserID, notification)
}

func (n *MQNotifier) NotifyStatsUpdated(ctx context.Context, event model.StatsEvent) error {
	return n.publish(ctx, n.statsTopic, eventStatsUpdated, event.SubmissionID, event.UserID, event)
}

func (n *MQNotifier) publish(ctx context.Context, topic, event, id, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", event, err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("%s-%s", event, id)
	message.Key = key
	message.SetHeader(headerEvent, event)
	if err := n.producer.Publish(ctx, topic, message); err != nil {
		return fmt.Errorf("publish %s event failed: %w", event, err)
	}
	return nil
}

// notificationKind picks how a summary is shown.
func notificationKind(status model.Status) model.NotificationKind {
	switch status {
	case model.StatusAccepted:
		return model.NotificationSuccess
	case model.StatusCompileError:
		return model.NotificationCompileError
	default:
		return model.NotificationFailure
	}
}
