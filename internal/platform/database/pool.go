// Package database opens the Postgres pool that backs the audit stores.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"audittrail/internal/platform/config"
	"audittrail/migrations"
)

const (
	driverName  = "pgx"
	pingTimeout = 5 * time.Second
)

var errNotConfigured = errors.New("database not configured")

// Pool owns the *sql.DB shared by the postgres audit and outbox stores.
type Pool struct {
	db *sql.DB
}

// New opens and pings a pool for cfg. It returns a nil pool and nil error
// when cfg.URL is empty so callers can fall back to memory stores.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configure(db, cfg)

	p := &Pool{db: db}
	if err := p.ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return p, nil
}

func configure(db *sql.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func (p *Pool) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

// DB exposes the pool to the store constructors.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies the embedded audit schema.
func (p *Pool) Migrate(ctx context.Context) error {
	if err := migrations.Up(ctx, p.db); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Collector reports sql.DBStats as go_sql_* metrics labelled db_name=name.
func (p *Pool) Collector(name string) prometheus.Collector {
	return collectors.NewDBStatsCollector(p.db, name)
}

// Health is registered as the readiness check for the database.
func (p *Pool) Health() error {
	if p == nil || p.db == nil {
		return errNotConfigured
	}
	return p.ping(context.Background())
}

// Close is a no-op on a nil pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
