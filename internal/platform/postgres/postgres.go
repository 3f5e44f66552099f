// Package postgres opens the optional database that run reports are
// recorded in.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/animus-labs/whlobf/internal/platform/env"
)

// Config for the run report database. An empty URL disables it. The pool is
// small: one CLI invocation records at most a few reports at a time.
type Config struct {
	URL             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{URL: strings.TrimSpace(env.String("DATABASE_URL", ""))}
	var errs []error
	for _, d := range []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"DATABASE_PING_TIMEOUT", 2 * time.Second, &cfg.PingTimeout},
		{"DATABASE_CONN_MAX_LIFETIME", 10 * time.Minute, &cfg.ConnMaxLifetime},
	} {
		v, err := env.Duration(d.key, d.def)
		errs = append(errs, err)
		*d.dst = v
	}
	for _, n := range []struct {
		key string
		def int
		dst *int
	}{
		{"DATABASE_MAX_OPEN_CONNS", 4, &cfg.MaxOpenConns},
		{"DATABASE_MAX_IDLE_CONNS", 1, &cfg.MaxIdleConns},
	} {
		v, err := env.Int(n.key, n.def)
		errs = append(errs, err)
		*n.dst = v
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks pool settings and reports every problem at once. The URL
// is only required by Open.
func (c Config) Validate() error {
	var errs []error
	if c.PingTimeout <= 0 {
		errs = append(errs, errors.New("DATABASE_PING_TIMEOUT must be positive"))
	}
	if c.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DATABASE_MAX_OPEN_CONNS must be >= 1"))
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		errs = append(errs, errors.New("DATABASE_MAX_IDLE_CONNS must be between 0 and DATABASE_MAX_OPEN_CONNS"))
	}
	if c.ConnMaxLifetime < 0 {
		errs = append(errs, errors.New("DATABASE_CONN_MAX_LIFETIME must be >= 0"))
	}
	return errors.Join(errs...)
}

// Open connects and pings within PingTimeout.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.New("DATABASE_URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping run database: %w", err)
	}
	return db, nil
}
