package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// StorageErrorKind classifies storage failures for callers that map them
// to API responses.
type StorageErrorKind string

const (
	ErrKindConstraintViolation StorageErrorKind = "constraint_violation"
	ErrKindConnectionLost      StorageErrorKind = "connection_lost"
	ErrKindTimeout             StorageErrorKind = "timeout"

	// ErrKindFailed covers failures that are not a recognized driver
	// fault, including errors a transaction callback returns itself.
	ErrKindFailed StorageErrorKind = "failed"
)

// StorageError wraps a database failure with a stable kind. The
// underlying cause is preserved for errors.Is/As.
type StorageError struct {
	Err  error
	Kind StorageErrorKind
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ClassifyError wraps err in a StorageError with the most specific kind
// that applies. A nil err returns nil.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &StorageError{Kind: ErrKindTimeout, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		// Class 23 covers integrity constraint violations.
		case "23":
			return &StorageError{Kind: ErrKindConstraintViolation, Err: err}
		// Class 08 is connection exceptions, class 57 operator
		// intervention (includes admin_shutdown and crash_shutdown).
		case "08", "57":
			return &StorageError{Kind: ErrKindConnectionLost, Err: err}
		}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &StorageError{Kind: ErrKindConstraintViolation, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &StorageError{Kind: ErrKindTimeout, Err: err}
		}
		return &StorageError{Kind: ErrKindConnectionLost, Err: err}
	}

	return &StorageError{Kind: ErrKindFailed, Err: err}
}

// IsConstraintViolation reports whether err is a constraint-violation
// storage error.
func IsConstraintViolation(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr) && storageErr.Kind == ErrKindConstraintViolation
}
