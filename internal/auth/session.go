package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie the API sets on login.
const SessionCookieName = "hvcm_session"

// sessionTTL is how long a session token stays valid.
const sessionTTL = 24 * time.Hour

// sessionClaims is the JWT claim set carried by a session token.
type sessionClaims struct {
	UserID         uint   `json:"user_id"`
	Role           string `json:"role"`
	OrganisationID *uint  `json:"organisation_id,omitempty"`
	jwt.RegisteredClaims
}

// SessionService issues and verifies signed session tokens. The token
// is self-contained: verifying it yields the identity without a
// database round trip.
type SessionService struct {
	secret []byte
	issuer string
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(secret string) (*SessionService, error) {
	if secret == "" {
		return nil, errors.New("session secret cannot be empty")
	}

	return &SessionService{
		secret: []byte(secret),
		issuer: "hvcm",
	}, nil
}

// CreateSession signs a session token for the identity.
func (s *SessionService) CreateSession(identity *Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity cannot be nil")
	}

	now := time.Now()
	claims := &sessionClaims{
		UserID:         identity.UserID,
		Role:           identity.Role,
		OrganisationID: identity.OrganisationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// VerifySession validates a session token and returns the identity it
// carries. Expired, malformed, or foreign-signed tokens all come back
// as Unauthorized.
func (s *SessionService) VerifySession(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized("no session token")
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized("invalid session token")
	}

	if claims.UserID == 0 {
		return nil, ErrUnauthorized("session token has no subject")
	}

	return &Identity{
		UserID:         claims.UserID,
		Role:           claims.Role,
		OrganisationID: claims.OrganisationID,
	}, nil
}
