package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"ms-distribution/internal/config"
	"ms-distribution/internal/logger"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const maxBodyLength = 1600

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

var (
	ErrInvalidRecipient = errors.New("recipient is not an E.164 phone number")
	ErrInvalidBody      = errors.New("message body is empty or too long")
)

// Sender delivers one SMS and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

func validate(to, body string) error {
	if !e164.MatchString(to) {
		return ErrInvalidRecipient
	}
	if body == "" || utf8.RuneCountInString(body) > maxBodyLength {
		return ErrInvalidBody
	}
	return nil
}

// IsPermanent reports whether retrying the send cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrInvalidBody)
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioSender struct {
	api  messageCreator
	from string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if err := validate(to, body); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logger *logger.Logger
}

func (s *LogSender) Send(_ context.Context, to, body string) (string, error) {
	if err := validate(to, body); err != nil {
		return "", err
	}
	s.Logger.Info("SMS", fmt.Sprintf("to=%s body=%q", to, body))
	return "logged", nil
}

// NewSenderFromConfig returns a Twilio sender when credentials are configured
// and a LogSender otherwise.
func NewSenderFromConfig(cfg config.SMSConfig, log *logger.Logger) Sender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		log.Warn("SMS", "Twilio credentials not set, confirmations are only logged")
		return &LogSender{Logger: log}
	}
	return NewTwilioSender(cfg.AccountSID, cfg.AuthToken, cfg.FromNumber)
}
