// Package seed populates a database with development fixtures: users
// across all roles, a small device fleet, and a short telemetry history
// per device.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/larkin1301/hvcm/internal/auth"
	"github.com/larkin1301/hvcm/internal/ingest"
	"github.com/larkin1301/hvcm/internal/sim"
	"github.com/larkin1301/hvcm/internal/store"
)

// Config holds the configuration for a seeding run.
type Config struct {
	Logger        *slog.Logger
	Pool          *store.Pool
	Organisations int
	UsersPerOrg   int
	Devices       int
	ReportsPer    int
	Password      string
}

// Seeder writes development fixtures through the same ingestion writer
// the live pipeline uses.
type Seeder struct {
	logger *slog.Logger
	pool   *store.Pool
	writer *ingest.Writer
	cfg    *Config
}

// New creates a Seeder.
func New(cfg *Config) (*Seeder, error) {
	if cfg == nil {
		return nil, errors.New("seed config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Pool == nil {
		return nil, errors.New("pool cannot be nil")
	}

	if cfg.Organisations <= 0 || cfg.UsersPerOrg <= 0 || cfg.Devices <= 0 {
		return nil, errors.New("organisations, users, and devices must be positive")
	}

	if cfg.Password == "" {
		return nil, errors.New("password cannot be empty")
	}

	writer, err := ingest.NewWriter(&ingest.WriterConfig{
		Logger: cfg.Logger,
		Pool:   cfg.Pool,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	return &Seeder{
		logger: cfg.Logger,
		pool:   cfg.Pool,
		writer: writer,
		cfg:    cfg,
	}, nil
}

// Run populates the database. It is not idempotent; running it twice
// creates a second batch of users and telemetry.
func (s *Seeder) Run(ctx context.Context) error {
	users, err := s.seedUsers(ctx)
	if err != nil {
		return err
	}

	deviceIDs, err := s.seedTelemetry(ctx)
	if err != nil {
		return err
	}

	if err := s.seedGrants(ctx, users, deviceIDs); err != nil {
		return err
	}

	s.logger.Info("seeding complete",
		"users", len(users),
		"devices", len(deviceIDs),
		"reports_per_device", s.cfg.ReportsPer,
	)
	return nil
}

// seedUsers creates one admin, then account managers and regular users
// spread across the configured organisations.
func (s *Seeder) seedUsers(ctx context.Context) ([]store.User, error) {
	credentials, err := auth.NewCredentialStore(&auth.CredentialStoreConfig{
		Logger: s.logger,
		Pool:   s.pool,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	users := make([]store.User, 0, 1+s.cfg.Organisations*s.cfg.UsersPerOrg)

	admin, err := s.register(ctx, credentials, "Fleet Admin", "admin@example.com", store.RoleAdmin, nil)
	if err != nil {
		return nil, err
	}
	if admin != nil {
		users = append(users, *admin)
	}

	for org := 1; org <= s.cfg.Organisations; org++ {
		orgID := uint(org) // #nosec G115

		manager, err := s.register(ctx, credentials,
			gofakeit.Name(),
			fmt.Sprintf("manager%d@example.com", org),
			store.RoleAccountManager, &orgID)
		if err != nil {
			return nil, err
		}
		if manager != nil {
			users = append(users, *manager)
		}

		for i := 1; i < s.cfg.UsersPerOrg; i++ {
			email := fmt.Sprintf("user%d-%d@example.com", org, i)
			user, err := s.register(ctx, credentials, gofakeit.Name(), email, store.RoleUser, &orgID)
			if err != nil {
				return nil, err
			}
			if user != nil {
				users = append(users, *user)
			}
		}
	}

	return users, nil
}

// register creates a user via the credential store and promotes it to
// the requested role. Already-registered emails are skipped.
func (s *Seeder) register(ctx context.Context, credentials *auth.CredentialStore, name, email, role string, orgID *uint) (*store.User, error) {
	user, err := credentials.Register(ctx, name, email, s.cfg.Password, orgID)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to seed user %s: %w", email, err)
	}

	if role != store.RoleUser {
		err := s.pool.DB().WithContext(ctx).
			Model(user).
			Update("role", role).Error
		if err != nil {
			return nil, fmt.Errorf("failed to set role for %s: %w", email, err)
		}
		user.Role = role
	}

	return user, nil
}

// seedTelemetry creates simulated devices and ingests a short history
// for each, backdated so the reports form a plausible track.
func (s *Seeder) seedTelemetry(ctx context.Context) ([]string, error) {
	deviceIDs := make([]string, 0, s.cfg.Devices)

	for i := 0; i < s.cfg.Devices; i++ {
		device, err := sim.NewDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to create device: %w", err)
		}
		deviceIDs = append(deviceIDs, device.DeviceID)

		for r := 0; r < s.cfg.ReportsPer; r++ {
			at := time.Now().UTC().Add(-time.Duration(s.cfg.ReportsPer-r) * time.Minute)

			payload := device.NextPayload(at)
			report, err := ingest.Validate(payload)
			if err != nil {
				return nil, fmt.Errorf("generated payload failed validation: %w", err)
			}

			if err := s.writer.Ingest(ctx, report); err != nil {
				return nil, fmt.Errorf("failed to ingest seed report: %w", err)
			}
		}
	}

	return deviceIDs, nil
}

// seedGrants assigns each non-admin user a random slice of the fleet.
func (s *Seeder) seedGrants(ctx context.Context, users []store.User, deviceIDs []string) error {
	db := s.pool.DB().WithContext(ctx)

	for _, user := range users {
		if user.Role == store.RoleAdmin {
			continue
		}

		count := 1 + gofakeit.Number(0, len(deviceIDs)-1)
		gofakeit.ShuffleStrings(deviceIDs)

		for _, deviceID := range deviceIDs[:count] {
			grant := store.UserDevice{
				UserID:   user.ID,
				DeviceID: deviceID,
			}
			err := db.Create(&grant).Error
			if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) &&
				!store.IsConstraintViolation(store.ClassifyError(err)) {
				return fmt.Errorf("failed to grant device %s to user %d: %w", deviceID, user.ID, err)
			}
		}
	}

	return nil
}
