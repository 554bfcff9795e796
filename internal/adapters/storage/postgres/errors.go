package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/PabloGalante/stacks/internal/domain"
)

// PostgreSQL error codes the store reacts to.
const (
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation
)

// Error represents an error in the repository layer.
type Error struct {
	Op      string
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("postgres %s: %s", e.Op, e.Message)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// translate maps driver errors onto domain errors. notFound is returned for
// gorm.ErrRecordNotFound.
func translate(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, notFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e := &Error{
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
			Err:     err,
		}
		switch pgErr.Code {
		case PgErrForeignKeyViolation:
			e.Err = domain.ErrSessionNotFound
		case PgErrCheckViolation, PgErrNotNullViolation:
			e.Err = domain.ErrInvalidInput
		}
		return e
	}

	return &Error{
		Op:      op,
		Code:    "DATABASE_ERROR",
		Message: "database error occurred",
		Detail:  err.Error(),
		Err:     err,
	}
}
