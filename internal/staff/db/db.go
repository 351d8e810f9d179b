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

const usedCountExpr = "(SELECT COUNT(*) FROM registrations AS r WHERE r.event_id = ?TableAlias.id) AS used"

// GetToken → one admission token, nil when missing
func (d *DB) GetToken(ctx context.Context, tokenID string) (*models.AdmissionToken, error) {
	var token models.AdmissionToken
	err := d.Bun.NewSelect().
		Model(&token).
		Where("id = ?", tokenID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &token, nil
}

// GetEventWithUsage → event plus its registration count, nil when missing
func (d *DB) GetEventWithUsage(ctx context.Context, eventID string) (*models.EventWithUsage, error) {
	var event models.EventWithUsage
	err := d.Bun.NewSelect().
		Model(&event).
		ColumnExpr("?TableAlias.*").
		ColumnExpr(usedCountExpr).
		Where("?TableAlias.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event usage: %w", err)
	}
	return &event, nil
}

// ActiveEvents → active events whose window contains now, earliest first
func (d *DB) ActiveEvents(ctx context.Context, now time.Time) ([]models.EventWithUsage, error) {
	events := make([]models.EventWithUsage, 0)
	err := d.Bun.NewSelect().
		Model(&events).
		ColumnExpr("?TableAlias.*").
		ColumnExpr(usedCountExpr).
		Where("?TableAlias.is_active = ?", true).
		Where("?TableAlias.starts_at <= ?", now).
		Where("?TableAlias.ends_at >= ?", now).
		OrderExpr("?TableAlias.starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("active events: %w", err)
	}
	return events, nil
}

// RegistrationsForEvent → every registration of the event in reference order
func (d *DB) RegistrationsForEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	regs := make([]models.Registration, 0)
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		OrderExpr("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// ConfirmPickup marks the registration as collected. The first confirmation
// time is kept on repeated calls. Returns nil when the registration is missing.
func (d *DB) ConfirmPickup(ctx context.Context, registrationID string, at time.Time) (*models.Registration, error) {
	_, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("pickup_confirmed = ?", true).
		Set("pickup_confirmed_at = ?", at).
		Where("id = ?", registrationID).
		Where("pickup_confirmed = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("confirm pickup: %w", err)
	}

	var reg models.Registration
	err = d.Bun.NewSelect().Model(&reg).Where("id = ?", registrationID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reload registration: %w", err)
	}
	return &reg, nil
}
