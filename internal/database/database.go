package database

import (
	"context"
	"database/sql"
	"fmt"

	"ms-distribution/internal/config"
	"ms-distribution/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres", "":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

		db := bun.NewDB(sqldb, pgdialect.New())
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database restricted to one connection, which
// makes every transaction exclusive, and creates the schema.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := CreateTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CreateTables builds the schema from the bun models. Postgres deployments use
// the SQL migrations instead.
func CreateTables(ctx context.Context, db bun.IDB) error {
	tables := []struct {
		model interface{}
		fk    string
	}{
		{model: (*models.Event)(nil)},
		{model: (*models.AdmissionToken)(nil), fk: `("event_id") REFERENCES "distribution_events" ("id")`},
		{model: (*models.Registration)(nil), fk: `("event_id") REFERENCES "distribution_events" ("id")`},
	}
	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		if t.fk != "" {
			q = q.ForeignKey(t.fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   interface{}
		columns []string
		unique  bool
	}{
		{name: "registrations_event_sequence_key", model: (*models.Registration)(nil), columns: []string{"event_id", "sequence"}, unique: true},
		{name: "registrations_phone_submitted_idx", model: (*models.Registration)(nil), columns: []string{"phone", "submitted_at"}},
		{name: "admission_tokens_event_idx", model: (*models.AdmissionToken)(nil), columns: []string{"event_id"}},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
