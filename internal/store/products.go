// Package store provides Postgres-backed persistence for extracted
// products.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"webshop/crawler/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Outcome describes the effect of an upsert.
type Outcome string

// Upsert outcomes. AlreadyExists is an expected steady-state result,
// not a failure.
const (
	Inserted      Outcome = "inserted"
	AlreadyExists Outcome = "already_exists"
)

// FatalError marks a persistence failure that makes further writes
// pointless (schema mismatch, non-identity constraint violation). The
// orchestrator aborts the run on it.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a run-aborting persistence failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Config controls the Postgres connection pool and write retry behavior.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
}

type execCloser interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// ProductStore upserts product rows keyed by identity. The UNIQUE
// constraint on identity_key is the storage-layer backstop behind the
// in-memory ledger: a retried or racing write never produces a
// duplicate row.
type ProductStore struct {
	pool   execCloser
	table  string
	cfg    Config
	logger *zap.Logger
}

// NewProductStore connects a pool using cfg.
func NewProductStore(ctx context.Context, cfg Config, logger *zap.Logger) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newWithPool(pool, cfg, logger)
}

// NewProductStoreWithPool constructs a store from an existing pool
// (primarily for testing with pgxmock).
func NewProductStoreWithPool(pool execCloser, cfg Config, logger *zap.Logger) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newWithPool(pool, cfg, logger)
}

func newWithPool(pool execCloser, cfg Config, logger *zap.Logger) (*ProductStore, error) {
	if cfg.Table == "" {
		cfg.Table = "products"
	}
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductStore{
		pool:   pool,
		table:  cfg.Table,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the products table and its identity constraint
// when they do not exist yet.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	identity_key TEXT NOT NULL UNIQUE,
	website_name VARCHAR(100) NOT NULL,
	product_name TEXT NOT NULL,
	price_excl_tax NUMERIC(10,2),
	category_path TEXT,
	image_url TEXT,
	source_url TEXT NOT NULL,
	sku VARCHAR(255),
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return &FatalError{Err: fmt.Errorf("ensure schema: %w", err)}
	}
	return nil
}

// Upsert writes one product row, retrying transient connection
// failures with backoff. A conflict on the identity constraint is
// reported as AlreadyExists; any other database error is fatal.
func (s *ProductStore) Upsert(ctx context.Context, product catalog.Product) (Outcome, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	identity_key,
	website_name,
	product_name,
	price_excl_tax,
	category_path,
	image_url,
	source_url,
	sku
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (identity_key) DO NOTHING`, s.table)

	args := []any{
		product.IdentityKey,
		product.WebsiteName,
		product.Name,
		product.PriceExclTax,
		product.CategoryPath,
		product.ImageURL,
		product.SourceURL,
		product.SKU,
	}

	attempts := s.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		tag, err := s.pool.Exec(ctx, query, args...)
		if err == nil {
			if tag.RowsAffected() == 0 {
				return AlreadyExists, nil
			}
			return Inserted, nil
		}
		lastErr = err

		if outcome, handled := classifyConflict(err); handled {
			return outcome, nil
		}
		if !isTransient(err) {
			return "", &FatalError{Err: fmt.Errorf("upsert %q: %w", product.IdentityKey, err)}
		}
		if attempt == attempts-1 {
			break
		}

		delay := s.cfg.BackoffBase << attempt
		s.logger.Warn("transient database failure, backing off",
			zap.String("identity_key", product.IdentityKey),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("upsert canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return "", &FatalError{Err: fmt.Errorf("upsert %q: retries exhausted: %w", product.IdentityKey, lastErr)}
}

// classifyConflict treats a unique violation on the identity constraint
// as AlreadyExists. Any other constraint violation falls through to the
// fatal path.
func classifyConflict(err error) (Outcome, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "identity_key") {
		return AlreadyExists, true
	}
	return "", false
}

// isTransient reports whether a write is worth retrying: connection
// failures (SQLSTATE class 08), admin shutdowns, and transport errors
// that never reached the server.
func isTransient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "57P01": // admin_shutdown
			return true
		default:
			return false
		}
	}
	// Anything that is not a server-reported error is assumed to be a
	// broken connection.
	return true
}
