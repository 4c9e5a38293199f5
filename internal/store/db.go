package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Defaults for the connection pool when the config leaves them zero.
const (
	defaultMaxConns       = 10
	defaultMaxIdleConns   = 5
	defaultAcquireTimeout = 5 * time.Second
)

// Config holds the database configuration.
type Config struct {
	Logger   *slog.Logger
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int

	// MaxConns bounds the number of concurrent connections. Callers
	// needing a connection beyond this bound queue inside database/sql
	// until one frees up or AcquireTimeout expires.
	MaxConns int

	// AcquireTimeout caps how long a transaction waits for a pooled
	// connection before failing with a timeout storage error.
	AcquireTimeout time.Duration
}

// NewPool connects to PostgreSQL, configures the bounded connection
// pool, verifies connectivity, and runs migrations.
func NewPool(cfg *Config) (*Pool, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	cfg.Logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"dbname", cfg.DBName,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // slog carries all logging
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Driver errors become gorm.ErrDuplicatedKey and friends, so
		// ClassifyError sees the same sentinels on every driver.
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}

	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(min(maxConns, defaultMaxIdleConns))
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established", "max_conns", maxConns)

	if err := runMigrations(db, cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Pool{
		db:             db,
		logger:         cfg.Logger,
		acquireTimeout: acquireTimeout,
	}, nil
}

// runMigrations runs database migrations for all models.
func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(
		&Device{},
		&ModemReport{},
		&ImuReport{},
		&GpsReport{},
		&BatteryReport{},
		&User{},
		&UserDevice{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}
