package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Classified store failures.
var (
	ErrConflict            = errors.New("platform/db: transaction conflict")
	ErrTimeout             = errors.New("platform/db: transaction timeout")
	ErrUniqueViolation     = errors.New("platform/db: unique violation")
	ErrForeignKeyViolation = errors.New("platform/db: foreign key violation")
	ErrCheckViolation      = errors.New("platform/db: check violation")
	ErrOutOfRange          = errors.New("platform/db: numeric value out of range")
)

// SQLSTATE codes used for classification.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
)

// Classify wraps err with one of the classified sentinels when it carries a
// recognised Postgres error code or a context deadline. Unknown errors and
// errors already classified are returned unchanged.
func Classify(err error) error {
	if err == nil || IsClassified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case codeLockNotAvailable, codeQueryCanceled:
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case codeCheckViolation:
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	case codeNumericOutOfRange:
		return fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	return err
}

// IsClassified reports whether err already carries a classification.
func IsClassified(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUniqueViolation) ||
		errors.Is(err, ErrForeignKeyViolation) ||
		errors.Is(err, ErrCheckViolation) ||
		errors.Is(err, ErrOutOfRange)
}

// ConstraintName returns the violated constraint, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
