package allocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
	"ms-distribution/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const confirmationSMS = "Your food order #%s has been confirmed. Thank you for using our food bank!"

// DBLayer is the storage the orchestrator needs. Every method other than
// WithTx must run on the transaction carried by ctx when one is present.
type DBLayer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTokenWithEvent(ctx context.Context, tokenID string) (*models.AdmissionToken, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	LockEvent(ctx context.Context, eventID string) (*models.Event, error)
	LockContact(ctx context.Context, phone string) error
	LatestRegistrationByPhone(ctx context.Context, phone string, since time.Time) (*models.Registration, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) error
}

// Dispatcher hands a confirmation off to the notification channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, job models.NotificationJob) error
}

// Recorder receives allocation outcomes for metrics.
type Recorder interface {
	AllocationCompleted(outcome string, elapsed time.Duration)
	NotificationFailed()
}

type noopRecorder struct{}

func (noopRecorder) AllocationCompleted(string, time.Duration) {}
func (noopRecorder) NotificationFailed()                       {}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCooldown(d time.Duration) Option {
	return func(s *Service) { s.cooldown = d }
}

func WithReferencePrefix(prefix string) Option {
	return func(s *Service) { s.prefix = prefix }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Service) { s.dispatchTimeout = d }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

type Service struct {
	DB         DBLayer
	Dispatcher Dispatcher
	log        *logger.Logger

	metrics         Recorder
	tracer          trace.Tracer
	now             func() time.Time
	cooldown        time.Duration
	prefix          string
	timeout         time.Duration
	dispatchTimeout time.Duration

	inflight sync.WaitGroup
}

func NewService(db DBLayer, dispatcher Dispatcher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		DB:              db,
		Dispatcher:      dispatcher,
		log:             log,
		metrics:         noopRecorder{},
		tracer:          otel.Tracer("ms-distribution/allocation"),
		now:             time.Now,
		cooldown:        DefaultCooldown,
		prefix:          DefaultReferencePrefix,
		timeout:         5 * time.Second,
		dispatchTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDiscard()
	}
	return s
}

// resolver turns the caller's credential into the event it targets. It runs
// inside the allocation transaction.
type resolver func(ctx context.Context, now time.Time) (models.EventSnapshot, error)

// Register admits the holder of an admission token into the token's event.
// The returned error is always a *Rejection.
func (s *Service) Register(ctx context.Context, tokenID string, req models.RegistrationRequest) (models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "allocation.Register", trace.WithAttributes(attribute.String("token.id", tokenID)))
	defer span.End()

	return s.allocate(ctx, span, req, func(ctx context.Context, now time.Time) (models.EventSnapshot, error) {
		token, err := s.DB.GetTokenWithEvent(ctx, tokenID)
		if err != nil {
			return models.EventSnapshot{}, err
		}
		return ValidateToken(token, now)
	})
}

// RegisterForEvent runs the same pipeline for a registration entered by staff
// directly against an event, without an admission token.
func (s *Service) RegisterForEvent(ctx context.Context, eventID string, req models.RegistrationRequest) (models.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "allocation.RegisterForEvent", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	return s.allocate(ctx, span, req, func(ctx context.Context, now time.Time) (models.EventSnapshot, error) {
		event, err := s.DB.GetEvent(ctx, eventID)
		if err != nil {
			return models.EventSnapshot{}, err
		}
		return ValidateEvent(event, now)
	})
}

func (s *Service) allocate(ctx context.Context, span trace.Span, req models.RegistrationRequest, resolve resolver) (models.Receipt, error) {
	started := time.Now()

	receipt, err := s.run(ctx, req, resolve)
	outcome := "committed"
	if err != nil {
		outcome = string(KindOf(err))
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("registration.reference", receipt.ReferenceNumber))
	}
	span.SetAttributes(attribute.String("allocation.outcome", outcome))
	s.metrics.AllocationCompleted(outcome, time.Since(started))
	return receipt, err
}

func (s *Service) run(ctx context.Context, req models.RegistrationRequest, resolve resolver) (models.Receipt, error) {
	details, err := NormalizeRequest(req)
	if err != nil {
		return models.Receipt{}, err
	}
	phone := details.Phone

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	reg := &models.Registration{
		ID:          utils.NewID(),
		Name:        details.Name,
		Phone:       phone,
		Email:       details.Email,
		SubmittedAt: now,
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		// Step 1: resolve and validate the target event
		snapshot, err := resolve(ctx, now)
		if err != nil {
			return err
		}

		// Step 2: cheap cooldown check before queueing on the event lock
		if err := s.checkCooldown(ctx, phone, now); err != nil {
			return err
		}

		// Step 3: serialize on the event, then on the contact
		event, err := s.DB.LockEvent(ctx, snapshot.EventID)
		if err != nil {
			return err
		}
		if event == nil || !event.IsActive {
			return ErrEventInactive
		}
		if err := s.DB.LockContact(ctx, phone); err != nil {
			return err
		}

		// Step 4: authoritative checks under the lock
		if err := s.checkCooldown(ctx, phone, now); err != nil {
			return err
		}
		used, err := s.DB.CountRegistrations(ctx, event.ID)
		if err != nil {
			return err
		}
		if used >= event.Capacity {
			return quotaExceeded(event.Capacity, used)
		}

		// Step 5: assign the next reference and insert
		reg.EventID = event.ID
		reg.Reference, reg.Sequence = NextReference(s.prefix, event.Snapshot(), used)
		return s.DB.CreateRegistration(ctx, reg)
	})
	if err != nil {
		rejection := classify(err)
		if rejection.Kind == KindPersistenceFailure || rejection.Kind == KindDuplicateReference {
			s.log.Error("ALLOCATION", fmt.Sprintf("Registration failed: %v", rejection))
		} else {
			s.log.Debug("ALLOCATION", fmt.Sprintf("Registration rejected: %s", rejection.Kind))
		}
		return models.Receipt{}, rejection
	}

	s.log.LogAllocation("COMMITTED", reg.EventID, fmt.Sprintf("Registration %s issued %s", reg.ID, reg.Reference))
	s.dispatch(*reg)

	return models.Receipt{
		ReferenceNumber: reg.Reference,
		RegistrationID:  reg.ID,
		SubmittedAt:     reg.SubmittedAt,
	}, nil
}

func (s *Service) checkCooldown(ctx context.Context, phone string, now time.Time) error {
	last, err := s.DB.LatestRegistrationByPhone(ctx, phone, now.Add(-s.cooldown))
	if err != nil {
		return err
	}
	return CheckCooldown(last, now, s.cooldown)
}

// dispatch publishes the confirmation on a goroutine detached from the request.
// Failures are logged and counted, never surfaced to the caller.
func (s *Service) dispatch(reg models.Registration) {
	if s.Dispatcher == nil {
		return
	}
	job := models.NotificationJob{
		RegistrationID: reg.ID,
		Phone:          reg.Phone,
		Reference:      reg.Reference,
		Message:        fmt.Sprintf(confirmationSMS, reg.Reference),
		CreatedAt:      s.now(),
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()

		if err := s.Dispatcher.Dispatch(ctx, job); err != nil {
			s.metrics.NotificationFailed()
			s.log.Warn("NOTIFY", fmt.Sprintf("%s: registration %s: %v", KindNotificationFailure, job.RegistrationID, err))
		}
	}()
}

// Wait blocks until every in-flight notification dispatch has returned.
func (s *Service) Wait() {
	s.inflight.Wait()
}
