package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-distribution/internal/allocation"
	"ms-distribution/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	pqUniqueViolation  pq.ErrorCode = "23505"
	pqLockNotAvailable pq.ErrorCode = "55P03"
)

var ErrLockTimeout = errors.New("timed out waiting for allocation lock")

type DB struct {
	Bun *bun.DB
	// LockTimeout bounds row and advisory lock waits on Postgres.
	LockTimeout time.Duration
}

type txKey struct{}

// WithTx runs fn in a transaction stored on ctx. Nested calls join the
// outer transaction.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if d.isPostgres() && d.LockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.LockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return translate(err)
}

func (d *DB) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return d.Bun
}

func (d *DB) isPostgres() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

// GetTokenWithEvent → token plus its event, nil when the token does not exist
func (d *DB) GetTokenWithEvent(ctx context.Context, tokenID string) (*models.AdmissionToken, error) {
	var token models.AdmissionToken
	err := d.conn(ctx).NewSelect().
		Model(&token).
		Relation("Event").
		Where("?TableAlias.id = ?", tokenID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", tokenID, err)
	}
	return &token, nil
}

// GetEvent → one event by id, nil when missing
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return d.selectEvent(ctx, eventID, false)
}

// LockEvent reads the event row and holds it for the rest of the transaction.
// SQLite has no row locks; there the single writer connection serializes
// transactions instead.
func (d *DB) LockEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return d.selectEvent(ctx, eventID, d.isPostgres())
}

func (d *DB) selectEvent(ctx context.Context, eventID string, forUpdate bool) (*models.Event, error) {
	var event models.Event
	q := d.conn(ctx).NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select event %s: %w", eventID, translate(err))
	}
	return &event, nil
}

// LockContact takes a transaction-scoped advisory lock on the phone number so
// two events cannot admit the same contact concurrently.
func (d *DB) LockContact(ctx context.Context, phone string) error {
	if !d.isPostgres() {
		return nil
	}
	if _, err := d.conn(ctx).ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", phone); err != nil {
		return fmt.Errorf("lock contact: %w", translate(err))
	}
	return nil
}

// LatestRegistrationByPhone → most recent registration for phone submitted after since
func (d *DB) LatestRegistrationByPhone(ctx context.Context, phone string, since time.Time) (*models.Registration, error) {
	var reg models.Registration
	err := d.conn(ctx).NewSelect().
		Model(&reg).
		Where("phone = ?", phone).
		Where("submitted_at > ?", since).
		OrderExpr("submitted_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest registration: %w", err)
	}
	return &reg, nil
}

// CountRegistrations → committed registrations for the event
func (d *DB) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	n, err := d.conn(ctx).NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// CreateRegistration → insert; a clash on reference or sequence is reported as
// allocation.ErrDuplicateReference
func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := d.conn(ctx).NewInsert().Model(reg).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return &allocation.Rejection{
				Kind:    allocation.KindDuplicateReference,
				Message: allocation.ErrDuplicateReference.Message,
				Err:     err,
			}
		}
		return fmt.Errorf("insert registration: %w", translate(err))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate marks lock wait timeouts so callers can tell them from other failures.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
