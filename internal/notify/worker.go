package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

const defaultMaxAttempts = 3

type SendRecorder interface {
	NotificationSent(ok bool)
}

// Worker consumes confirmation jobs and sends them with bounded retries.
// A job that still fails is logged and dropped so the partition keeps moving.
type Worker struct {
	Sender      Sender
	Logger      *logger.Logger
	Metrics     SendRecorder
	MaxAttempts int
	Interval    time.Duration
}

func NewWorker(sender Sender, log *logger.Logger, metrics SendRecorder) *Worker {
	return &Worker{
		Sender:      sender,
		Logger:      log,
		Metrics:     metrics,
		MaxAttempts: defaultMaxAttempts,
		Interval:    500 * time.Millisecond,
	}
}

// HandleMessage decodes one Kafka message. It is the consumer callback.
func (w *Worker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var job models.NotificationJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		w.Logger.Error("NOTIFY", fmt.Sprintf("Dropping undecodable message at offset %d: %v", msg.Offset, err))
		return nil
	}
	w.Handle(ctx, job)
	return nil
}

// Handle sends job and reports whether it was delivered.
func (w *Worker) Handle(ctx context.Context, job models.NotificationJob) bool {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.Interval
	attempts := w.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var sid string
	err := backoff.Retry(func() error {
		var err error
		sid, err = w.Sender.Send(ctx, job.Phone, job.Message)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))

	if w.Metrics != nil {
		w.Metrics.NotificationSent(err == nil)
	}
	if err != nil {
		w.Logger.Error("NOTIFY", fmt.Sprintf("Confirmation for registration %s failed: %v", job.RegistrationID, err))
		return false
	}
	w.Logger.Info("NOTIFY", fmt.Sprintf("Confirmation %s sent for registration %s (%s)", sid, job.RegistrationID, job.Reference))
	return true
}
