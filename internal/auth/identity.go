// Package auth provides identity, credential verification, session
// tokens, and the device access scope resolver.
package auth

import (
	"fmt"
)

// Identity is an authenticated principal: the minimal facts the scope
// resolver needs to decide what the caller may read.
type Identity struct {
	Role           string
	OrganisationID *uint
	UserID         uint
}

// AuthErrorKind distinguishes "who are you" failures from "you may not"
// failures.
type AuthErrorKind string

const (
	ErrKindUnauthorized AuthErrorKind = "unauthorized"
	ErrKindForbidden    AuthErrorKind = "forbidden"
)

// AuthError is a client-caused identity or permission failure.
type AuthError struct {
	Reason string
	Kind   AuthErrorKind
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// ErrUnauthorized builds an AuthError for missing or invalid identity.
func ErrUnauthorized(reason string) *AuthError {
	return &AuthError{Kind: ErrKindUnauthorized, Reason: reason}
}

// ErrForbidden builds an AuthError for an authenticated identity whose
// role does not permit the operation.
func ErrForbidden(reason string) *AuthError {
	return &AuthError{Kind: ErrKindForbidden, Reason: reason}
}
