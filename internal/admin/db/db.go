package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-distribution/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// RegistrationFilter narrows the registration listing. Zero values match all.
type RegistrationFilter struct {
	EventID string
	Day     time.Time
	Offset  int
	Limit   int
}

// CreateEvent → insert new event
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	if _, err := d.Bun.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent → one event, nil when missing
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().Model(&event).Where("id = ?", eventID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// ListEvents → every event with its registration count and the number of
// tokens still usable at now, newest window first
func (d *DB) ListEvents(ctx context.Context, now time.Time) ([]models.EventOverview, error) {
	events := make([]models.EventOverview, 0)
	err := d.Bun.NewSelect().
		Model(&events).
		ColumnExpr("?TableAlias.*").
		ColumnExpr("(SELECT COUNT(*) FROM registrations AS r WHERE r.event_id = ?TableAlias.id) AS used").
		ColumnExpr("(SELECT COUNT(*) FROM admission_tokens AS t WHERE t.event_id = ?TableAlias.id AND t.is_active = ? AND t.expires_at > ?) AS active_tokens", true, now).
		OrderExpr("?TableAlias.starts_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// SetEventActive → opens or closes an event, false when no such event exists
func (d *DB) SetEventActive(ctx context.Context, eventID string, active bool) (bool, error) {
	return d.setActive(ctx, (*models.Event)(nil), eventID, active)
}

// CreateToken → insert new admission token
func (d *DB) CreateToken(ctx context.Context, token *models.AdmissionToken) error {
	if _, err := d.Bun.NewInsert().Model(token).Exec(ctx); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken → one token, nil when missing
func (d *DB) GetToken(ctx context.Context, tokenID string) (*models.AdmissionToken, error) {
	var token models.AdmissionToken
	err := d.Bun.NewSelect().Model(&token).Where("id = ?", tokenID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &token, nil
}

// DeactivateToken → returns false when no such token exists
func (d *DB) DeactivateToken(ctx context.Context, tokenID string) (bool, error) {
	return d.setActive(ctx, (*models.AdmissionToken)(nil), tokenID, false)
}

func (d *DB) setActive(ctx context.Context, model interface{}, id string, active bool) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(model).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("set is_active on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRegistration → one registration, nil when missing
func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().Model(&reg).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

// UpdateRegistrationContact → rewrites name, phone and email of one registration
func (d *DB) UpdateRegistrationContact(ctx context.Context, reg *models.Registration) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(reg).
		Column("name", "phone", "email").
		WherePK().
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update registration %s: %w", reg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PhoneRegisteredBetween → another registration for phone submitted in
// [from, to), nil when there is none
func (d *DB) PhoneRegisteredBetween(ctx context.Context, phone, excludeID string, from, to time.Time) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("phone = ?", phone).
		Where("id <> ?", excludeID).
		Where("submitted_at >= ?", from).
		Where("submitted_at < ?", to).
		OrderExpr("submitted_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find registration by phone: %w", err)
	}
	return &reg, nil
}

// ListRegistrations → one page of registrations, newest first, plus the total match count
func (d *DB) ListRegistrations(ctx context.Context, f RegistrationFilter) ([]models.Registration, int, error) {
	regs := make([]models.Registration, 0)
	q := d.Bun.NewSelect().Model(&regs)
	q = applyFilter(q, f)
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	total, err := q.OrderExpr("submitted_at DESC").ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return regs, total, nil
}

// StreamRegistrations calls fn for every matching registration, oldest first.
func (d *DB) StreamRegistrations(ctx context.Context, f RegistrationFilter, fn func(models.Registration) error) error {
	q := d.Bun.NewSelect().Model((*models.Registration)(nil))
	q = applyFilter(q, f)
	rows, err := q.OrderExpr("submitted_at ASC").Rows(ctx)
	if err != nil {
		return fmt.Errorf("export registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reg models.Registration
		if err := d.Bun.ScanRow(ctx, rows, &reg); err != nil {
			return fmt.Errorf("scan registration: %w", err)
		}
		if err := fn(reg); err != nil {
			return err
		}
	}
	return rows.Err()
}

func applyFilter(q *bun.SelectQuery, f RegistrationFilter) *bun.SelectQuery {
	if f.EventID != "" {
		q = q.Where("event_id = ?", f.EventID)
	}
	if !f.Day.IsZero() {
		start := time.Date(f.Day.Year(), f.Day.Month(), f.Day.Day(), 0, 0, 0, 0, time.UTC)
		q = q.Where("submitted_at >= ?", start).Where("submitted_at < ?", start.AddDate(0, 0, 1))
	}
	return q
}
