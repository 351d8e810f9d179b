package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ms-distribution/internal/config"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, to, body string) (string, error) {
	args := m.Called(ctx, to, body)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, v interface{}) error {
	args := m.Called(ctx, key, v)
	return args.Error(0)
}

type countingRecorder struct {
	ok, failed int
}

func (r *countingRecorder) NotificationSent(ok bool) {
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

var job = models.NotificationJob{
	RegistrationID: "reg-1",
	Phone:          "+15551234567",
	Reference:      "FB-20240601-A1B2C3-001",
	Message:        "Your food order #FB-20240601-A1B2C3-001 has been confirmed. Thank you for using our food bank!",
}

func newWorker(sender Sender, rec SendRecorder) *Worker {
	w := NewWorker(sender, logger.NewDiscard(), rec)
	w.Interval = time.Millisecond
	return w
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, job.Phone, job.Message).Return("", errors.New("timeout")).Twice()
	sender.On("Send", mock.Anything, job.Phone, job.Message).Return("SM1", nil).Once()
	rec := &countingRecorder{}

	ok := newWorker(sender, rec).Handle(context.Background(), job)

	assert.True(t, ok)
	assert.Equal(t, 1, rec.ok)
	sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, job.Phone, job.Message).Return("", errors.New("provider down"))
	rec := &countingRecorder{}

	ok := newWorker(sender, rec).Handle(context.Background(), job)

	assert.False(t, ok)
	assert.Equal(t, 1, rec.failed)
	sender.AssertNumberOfCalls(t, "Send", defaultMaxAttempts)
}

func TestWorkerDoesNotRetryPermanentErrors(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("", ErrInvalidRecipient)

	ok := newWorker(sender, nil).Handle(context.Background(), job)

	assert.False(t, ok)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestWorkerHandleMessageSkipsPoisonMessages(t *testing.T) {
	sender := new(MockSender)
	w := newWorker(sender, nil)

	err := w.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})

	assert.NoError(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerHandleMessageDecodesJob(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, job.Phone, job.Message).Return("SM1", nil).Once()
	value, err := json.Marshal(job)
	require.NoError(t, err)

	require.NoError(t, newWorker(sender, nil).HandleMessage(context.Background(), kafka.Message{Value: value}))
	sender.AssertExpectations(t)
}

func TestKafkaDispatcherKeysByRegistration(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, "reg-1", job).Return(nil).Once()
	d := NewKafkaDispatcher(pub, "distribution.registration.confirmed", logger.NewDiscard())

	require.NoError(t, d.Dispatch(context.Background(), job))
	pub.AssertExpectations(t)
}

func TestKafkaDispatcherWrapsPublishError(t *testing.T) {
	pub := new(MockPublisher)
	boom := errors.New("broker unavailable")
	pub.On("Publish", mock.Anything, "reg-1", job).Return(boom)
	d := NewKafkaDispatcher(pub, "topic", logger.NewDiscard())

	err := d.Dispatch(context.Background(), job)
	assert.ErrorIs(t, err, boom)
}

func TestSendDispatcherSendsInline(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, job.Phone, job.Message).Return("SM9", nil).Once()
	d := &SendDispatcher{Sender: sender, Logger: logger.NewDiscard()}

	require.NoError(t, d.Dispatch(context.Background(), job))
	sender.AssertExpectations(t)
}

func TestTwilioSender(t *testing.T) {
	api := &fakeTwilio{}
	s := &TwilioSender{api: api, from: "+15550000000"}

	sid, err := s.Send(context.Background(), job.Phone, job.Message)
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
	require.NotNil(t, api.params.To)
	assert.Equal(t, job.Phone, *api.params.To)
	assert.Equal(t, "+15550000000", *api.params.From)
	assert.Equal(t, job.Message, *api.params.Body)
}

func TestTwilioSenderValidatesBeforeCalling(t *testing.T) {
	api := &fakeTwilio{}
	s := &TwilioSender{api: api, from: "+15550000000"}

	_, err := s.Send(context.Background(), "5551234567", "hi")
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	_, err = s.Send(context.Background(), job.Phone, strings.Repeat("x", maxBodyLength+1))
	assert.ErrorIs(t, err, ErrInvalidBody)

	assert.Nil(t, api.params)
}

func TestTwilioSenderWrapsProviderError(t *testing.T) {
	api := &fakeTwilio{err: errors.New("21211")}
	s := &TwilioSender{api: api, from: "+15550000000"}

	_, err := s.Send(context.Background(), job.Phone, job.Message)
	assert.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestNewSenderFromConfig(t *testing.T) {
	log := logger.NewDiscard()

	tests := []struct {
		name   string
		cfg    config.SMSConfig
		twilio bool
	}{
		{name: "no credentials", cfg: config.SMSConfig{}},
		{name: "missing token", cfg: config.SMSConfig{AccountSID: "AC123", FromNumber: "+15550000000"}},
		{name: "configured", cfg: config.SMSConfig{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550000000"}, twilio: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := NewSenderFromConfig(tt.cfg, log)
			if tt.twilio {
				assert.IsType(t, &TwilioSender{}, sender)
				return
			}
			assert.IsType(t, &LogSender{}, sender)
		})
	}
}
