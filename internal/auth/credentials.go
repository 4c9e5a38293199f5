package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/larkin1301/hvcm/internal/store"
)

// bcryptCost matches the work factor the fleet's existing password
// hashes were created with.
const bcryptCost = 10

// ErrEmailTaken is returned by Register when the email is already in use.
var ErrEmailTaken = errors.New("email already registered")

// CredentialStore verifies and creates user credentials against the
// users table.
type CredentialStore struct {
	logger *slog.Logger
	pool   *store.Pool
}

// CredentialStoreConfig holds the configuration for the CredentialStore.
type CredentialStoreConfig struct {
	Logger *slog.Logger
	Pool   *store.Pool
}

// NewCredentialStore creates a new CredentialStore instance.
func NewCredentialStore(cfg *CredentialStoreConfig) (*CredentialStore, error) {
	if cfg == nil {
		return nil, errors.New("credential store config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Pool == nil {
		return nil, errors.New("pool cannot be nil")
	}

	return &CredentialStore{
		logger: cfg.Logger,
		pool:   cfg.Pool,
	}, nil
}

// Authenticate verifies an email and password pair. Unknown emails and
// wrong passwords both return Unauthorized; callers cannot distinguish
// the two.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	var user store.User
	err := s.pool.DB().WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized("invalid credentials")
	}

	return &Identity{
		UserID:         user.ID,
		Role:           user.Role,
		OrganisationID: user.OrganisationID,
	}, nil
}

// Register creates a user with a bcrypt password hash. The role
// defaults to user when empty.
func (s *CredentialStore) Register(ctx context.Context, name, email, password string, organisationID *uint) (*store.User, error) {
	if name == "" || email == "" || password == "" {
		return nil, errors.New("name, email, and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &store.User{
		Name:           name,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:   string(hash),
		Role:           store.RoleUser,
		OrganisationID: organisationID,
	}

	if err := s.pool.DB().WithContext(ctx).Create(user).Error; err != nil {
		if store.IsConstraintViolation(store.ClassifyError(err)) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}
