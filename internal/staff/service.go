package staff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-distribution/internal/allocation"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
)

var ErrRegistrationNotFound = errors.New("registration not found")

type DBLayer interface {
	GetToken(ctx context.Context, tokenID string) (*models.AdmissionToken, error)
	GetEventWithUsage(ctx context.Context, eventID string) (*models.EventWithUsage, error)
	ActiveEvents(ctx context.Context, now time.Time) ([]models.EventWithUsage, error)
	RegistrationsForEvent(ctx context.Context, eventID string) ([]models.Registration, error)
	ConfirmPickup(ctx context.Context, registrationID string, at time.Time) (*models.Registration, error)
}

// Allocator admits a registration without an admission token.
type Allocator interface {
	RegisterForEvent(ctx context.Context, eventID string, req models.RegistrationRequest) (models.Receipt, error)
}

// TokenLookup is what staff see after scanning a QR code.
type TokenLookup struct {
	Token         models.AdmissionToken `json:"token"`
	Event         models.EventWithUsage `json:"event"`
	Remaining     int                   `json:"remaining"`
	Registrations []models.Registration `json:"registrations"`
}

type StaffService struct {
	DB        DBLayer
	Allocator Allocator
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewStaffService(db DBLayer, allocator Allocator, log *logger.Logger) *StaffService {
	return &StaffService{DB: db, Allocator: allocator, Logger: log, Now: time.Now}
}

// Lookup resolves a token to its event and the registrations made so far.
// Unlike public submission, inactive and expired tokens are reported as such.
func (s *StaffService) Lookup(ctx context.Context, tokenID string) (*TokenLookup, error) {
	token, err := s.DB.GetToken(ctx, tokenID)
	if err != nil {
		return nil, allocation.PersistenceFailure(err)
	}
	if token == nil {
		return nil, allocation.ErrTokenNotFound
	}
	if !token.IsActive {
		return nil, allocation.ErrTokenInactive
	}
	if !s.Now().Before(token.ExpiresAt) {
		return nil, allocation.ErrTokenExpired
	}

	event, err := s.DB.GetEventWithUsage(ctx, token.EventID)
	if err != nil {
		return nil, allocation.PersistenceFailure(err)
	}
	if event == nil {
		return nil, allocation.ErrTokenNotFound
	}
	regs, err := s.DB.RegistrationsForEvent(ctx, event.ID)
	if err != nil {
		return nil, allocation.PersistenceFailure(err)
	}

	remaining := event.Capacity - event.Used
	if remaining < 0 {
		remaining = 0
	}
	return &TokenLookup{Token: *token, Event: *event, Remaining: remaining, Registrations: regs}, nil
}

// RegisterManually enters a walk-in registration against an event.
func (s *StaffService) RegisterManually(ctx context.Context, eventID string, req models.RegistrationRequest) (models.Receipt, error) {
	receipt, err := s.Allocator.RegisterForEvent(ctx, eventID, req)
	if err != nil {
		return models.Receipt{}, err
	}
	s.Logger.LogAllocation("MANUAL", eventID, fmt.Sprintf("Staff registered %s", receipt.ReferenceNumber))
	return receipt, nil
}

func (s *StaffService) ActiveEvents(ctx context.Context) ([]models.EventWithUsage, error) {
	events, err := s.DB.ActiveEvents(ctx, s.Now())
	if err != nil {
		return nil, allocation.PersistenceFailure(err)
	}
	return events, nil
}

func (s *StaffService) ConfirmPickup(ctx context.Context, registrationID string) (*models.Registration, error) {
	reg, err := s.DB.ConfirmPickup(ctx, registrationID, s.Now())
	if err != nil {
		return nil, allocation.PersistenceFailure(err)
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	s.Logger.Info("STAFF", fmt.Sprintf("Pickup confirmed for %s", reg.Reference))
	return reg, nil
}
