package notify

import (
	"context"
	"fmt"

	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
)

// Publisher writes a keyed JSON message to the confirmation topic.
type Publisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// KafkaDispatcher queues confirmations for the notification worker. Messages
// are keyed by registration id so retries of one registration stay ordered.
type KafkaDispatcher struct {
	Producer Publisher
	Topic    string
	Logger   *logger.Logger
}

func NewKafkaDispatcher(producer Publisher, topic string, log *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{Producer: producer, Topic: topic, Logger: log}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, job models.NotificationJob) error {
	if err := d.Producer.Publish(ctx, job.RegistrationID, job); err != nil {
		return fmt.Errorf("publish confirmation %s: %w", job.RegistrationID, err)
	}
	d.Logger.LogKafka("PUBLISHED", d.Topic, fmt.Sprintf("confirmation queued for registration %s", job.RegistrationID))
	return nil
}

// SendDispatcher delivers the confirmation inline through a Sender. It is used
// when Kafka is disabled.
type SendDispatcher struct {
	Sender Sender
	Logger *logger.Logger
}

func (d *SendDispatcher) Dispatch(ctx context.Context, job models.NotificationJob) error {
	sid, err := d.Sender.Send(ctx, job.Phone, job.Message)
	if err != nil {
		return err
	}
	d.Logger.Info("NOTIFY", fmt.Sprintf("Confirmation %s sent for registration %s", sid, job.RegistrationID))
	return nil
}
