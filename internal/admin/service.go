package admin

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ms-distribution/internal/admin/db"
	"ms-distribution/internal/allocation"
	"ms-distribution/internal/logger"
	"ms-distribution/internal/models"
	"ms-distribution/internal/utils"
)

const (
	DefaultHoursValid = 24
	MaxHoursValid     = 168
	DefaultPageSize   = 50
	MaxPageSize       = 100
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrTokenNotFound = errors.New("admission token not found")

	ErrRegistrationNotFound = errors.New("registration not found")
)

// ValidationError reports a rejected admin request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListEvents(ctx context.Context, now time.Time) ([]models.EventOverview, error)
	SetEventActive(ctx context.Context, eventID string, active bool) (bool, error)
	CreateToken(ctx context.Context, token *models.AdmissionToken) error
	GetToken(ctx context.Context, tokenID string) (*models.AdmissionToken, error)
	DeactivateToken(ctx context.Context, tokenID string) (bool, error)
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	UpdateRegistrationContact(ctx context.Context, reg *models.Registration) (bool, error)
	PhoneRegisteredBetween(ctx context.Context, phone, excludeID string, from, to time.Time) (*models.Registration, error)
	ListRegistrations(ctx context.Context, f db.RegistrationFilter) ([]models.Registration, int, error)
	StreamRegistrations(ctx context.Context, f db.RegistrationFilter, fn func(models.Registration) error) error
}

type QRRenderer interface {
	SubmitURL(tokenID string) string
	PNG(tokenID string) ([]byte, error)
}

type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
}

type IssueTokenRequest struct {
	EventID    string `json:"event_id"`
	HoursValid int    `json:"hours_valid,omitempty"`
}

type IssuedToken struct {
	TokenID   string       `json:"token_id"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
	Event     models.Event `json:"event"`
}

// UpdateRegistrationRequest corrects citizen details. Nil fields are kept;
// an empty email clears it.
type UpdateRegistrationRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

type RegistrationPage struct {
	Registrations []models.Registration `json:"registrations"`
	Pagination    Pagination            `json:"pagination"`
}

// ListQuery is the parsed form of the registration listing parameters.
type ListQuery struct {
	EventID string
	Day     time.Time
	Page    int
	Limit   int
}

type AdminService struct {
	DB     DBLayer
	QR     QRRenderer
	Logger *logger.Logger
	Now    func() time.Time

	// Cooldown bounds how close two registrations for one phone may be;
	// contact edits are checked against it.
	Cooldown time.Duration
}

func NewAdminService(db DBLayer, qr QRRenderer, log *logger.Logger) *AdminService {
	return &AdminService{DB: db, QR: qr, Logger: log, Now: time.Now, Cooldown: allocation.DefaultCooldown}
}

func (s *AdminService) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, &ValidationError{Field: "name", Message: "is required"}
	case req.Capacity < 1:
		return nil, &ValidationError{Field: "capacity", Message: "must be at least 1"}
	case req.StartsAt.IsZero() || req.EndsAt.IsZero():
		return nil, &ValidationError{Field: "starts_at", Message: "starts_at and ends_at are required"}
	case !req.StartsAt.Before(req.EndsAt):
		return nil, &ValidationError{Field: "starts_at", Message: "must be before ends_at"}
	case req.StartsAt.Before(s.Now()):
		return nil, &ValidationError{Field: "starts_at", Message: "cannot be in the past"}
	}

	event := &models.Event{
		ID:          utils.NewID(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Capacity:    req.Capacity,
		IsActive:    true,
		CreatedAt:   s.Now().UTC(),
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.Logger.LogAllocation("EVENT_CREATED", event.ID, fmt.Sprintf("%s capacity=%d", event.Name, event.Capacity))
	return event, nil
}

func (s *AdminService) ListEvents(ctx context.Context) ([]models.EventOverview, error) {
	return s.DB.ListEvents(ctx, s.Now().UTC())
}

// IssueToken creates a fresh admission token for an active event.
func (s *AdminService) IssueToken(ctx context.Context, req IssueTokenRequest) (*IssuedToken, error) {
	hours := req.HoursValid
	if hours == 0 {
		hours = DefaultHoursValid
	}
	if hours < 1 || hours > MaxHoursValid {
		return nil, &ValidationError{Field: "hours_valid", Message: fmt.Sprintf("must be between 1 and %d", MaxHoursValid)}
	}

	event, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.IsActive {
		return nil, ErrEventNotFound
	}

	now := s.Now().UTC()
	token := &models.AdmissionToken{
		ID:        utils.NewID(),
		EventID:   event.ID,
		ExpiresAt: now.Add(time.Duration(hours) * time.Hour),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.DB.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	s.Logger.LogSecurity("TOKEN_ISSUED", fmt.Sprintf("token %s for event %s valid %dh", token.ID, event.ID, hours))

	return &IssuedToken{
		TokenID:   token.ID,
		URL:       s.QR.SubmitURL(token.ID),
		ExpiresAt: token.ExpiresAt,
		Event:     *event,
	}, nil
}

// TokenQR renders the QR code image for an existing token.
func (s *AdminService) TokenQR(ctx context.Context, tokenID string) ([]byte, error) {
	token, err := s.DB.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	return s.QR.PNG(token.ID)
}

func (s *AdminService) DeactivateToken(ctx context.Context, tokenID string) error {
	ok, err := s.DB.DeactivateToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}
	s.Logger.LogSecurity("TOKEN_DEACTIVATED", tokenID)
	return nil
}

func (s *AdminService) DeactivateEvent(ctx context.Context, eventID string) error {
	_, err := s.SetEventActive(ctx, eventID, false)
	return err
}

// SetEventActive opens or closes an event for registration and returns the
// stored event.
func (s *AdminService) SetEventActive(ctx context.Context, eventID string, active bool) (*models.Event, error) {
	ok, err := s.DB.SetEventActive(ctx, eventID, active)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEventNotFound
	}
	if active {
		s.Logger.LogAllocation("EVENT_ACTIVATED", eventID, "event open for registration")
	} else {
		s.Logger.LogAllocation("EVENT_DEACTIVATED", eventID, "event closed for registration")
	}

	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// UpdateRegistration corrects the contact details of a registration. The
// merged details pass the same validation as a citizen submission, and a new
// phone must not collide with another registration inside the cooldown.
func (s *AdminService) UpdateRegistration(ctx context.Context, id string, req UpdateRegistrationRequest) (*models.Registration, error) {
	if req.Name == nil && req.Phone == nil && req.Email == nil {
		return nil, &ValidationError{Field: "body", Message: "at least one of name, phone or email is required"}
	}

	reg, err := s.DB.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}

	merged := models.RegistrationRequest{Name: reg.Name, Phone: reg.Phone, Email: reg.Email}
	if req.Name != nil {
		merged.Name = *req.Name
	}
	if req.Phone != nil {
		merged.Phone = *req.Phone
	}
	if req.Email != nil {
		merged.Email = *req.Email
	}
	details, err := allocation.NormalizeRequest(merged)
	if err != nil {
		return nil, err
	}

	var changed []string
	if details.Name != reg.Name {
		changed = append(changed, "name")
	}
	if details.Phone != reg.Phone {
		changed = append(changed, "phone")
		if err := s.checkPhoneCooldown(ctx, reg, details.Phone); err != nil {
			return nil, err
		}
	}
	if details.Email != reg.Email {
		changed = append(changed, "email")
	}
	if len(changed) == 0 {
		return reg, nil
	}

	reg.Name, reg.Phone, reg.Email = details.Name, details.Phone, details.Email
	ok, err := s.DB.UpdateRegistrationContact(ctx, reg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	s.Logger.LogAllocation("REGISTRATION_UPDATED", reg.EventID, fmt.Sprintf("registration %s fields=%s", reg.ID, strings.Join(changed, ",")))
	return reg, nil
}

func (s *AdminService) checkPhoneCooldown(ctx context.Context, reg *models.Registration, phone string) error {
	other, err := s.DB.PhoneRegisteredBetween(ctx, phone, reg.ID, reg.SubmittedAt.Add(-s.Cooldown), reg.SubmittedAt.Add(s.Cooldown))
	if err != nil {
		return err
	}
	if other == nil {
		return nil
	}
	earlier, later := other, reg
	if reg.SubmittedAt.Before(other.SubmittedAt) {
		earlier, later = reg, other
	}
	return allocation.CheckCooldown(earlier, later.SubmittedAt, s.Cooldown)
}

func (s *AdminService) ListRegistrations(ctx context.Context, q ListQuery) (*RegistrationPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	regs, total, err := s.DB.ListRegistrations(ctx, db.RegistrationFilter{
		EventID: q.EventID,
		Day:     q.Day,
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	pages := (total + limit - 1) / limit
	return &RegistrationPage{
		Registrations: regs,
		Pagination: Pagination{
			Total:   total,
			Page:    page,
			Limit:   limit,
			Pages:   pages,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	}, nil
}

var exportHeader = []string{"reference_number", "name", "phone", "email", "event_id", "submitted_at", "pickup_confirmed", "pickup_confirmed_at"}

// ExportCSV writes every matching registration to w as CSV.
func (s *AdminService) ExportCSV(ctx context.Context, q ListQuery, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	err := s.DB.StreamRegistrations(ctx, db.RegistrationFilter{EventID: q.EventID, Day: q.Day}, func(r models.Registration) error {
		pickedUp := ""
		if !r.PickupConfirmedAt.IsZero() {
			pickedUp = r.PickupConfirmedAt.UTC().Format(time.RFC3339)
		}
		return cw.Write([]string{
			r.Reference,
			r.Name,
			r.Phone,
			r.Email,
			r.EventID,
			r.SubmittedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(r.PickupConfirmed),
			pickedUp,
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
