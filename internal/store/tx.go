package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Pool owns the bounded database connection pool and provides scoped
// transactional execution. It is passed explicitly to every component
// that touches storage; there is no process-wide singleton.
type Pool struct {
	db             *gorm.DB
	logger         *slog.Logger
	acquireTimeout time.Duration
}

// NewPoolFromDB wraps an already-open gorm.DB. Intended for tests that
// supply an in-memory database.
func NewPoolFromDB(db *gorm.DB, logger *slog.Logger) (*Pool, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Pool{
		db:             db,
		logger:         logger,
		acquireTimeout: defaultAcquireTimeout,
	}, nil
}

// DB returns the underlying gorm handle for single-statement reads.
// Reads run outside any transaction.
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// Migrate runs the schema migrations. NewPool does this on startup;
// tests wrapping their own database call it directly.
func (p *Pool) Migrate() error {
	return runMigrations(p.db, p.logger)
}

// WithTransaction acquires a pooled connection, begins a transaction,
// and invokes fn. The transaction commits when fn returns nil and rolls
// back when fn returns an error or panics; exactly one of the two
// happens, and the connection is always released. Waiting for a
// connection is capped by the pool's acquire timeout so a saturated
// pool fails fast instead of queuing without bound.
func (p *Pool) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	err := p.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		return ClassifyError(err)
	}
	return nil
}

// PingTime returns the storage engine's current time, verifying
// connectivity for the liveness endpoint.
func (p *Pool) PingTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := p.db.WithContext(ctx).Raw("SELECT NOW()").Scan(&now).Error; err != nil {
		return time.Time{}, fmt.Errorf("ping query failed: %w", err)
	}
	return now, nil
}

// Close closes the underlying connection pool.
func (p *Pool) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	p.logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	p.logger.Info("database connection closed")
	return nil
}
