package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Machine-readable error codes returned to HTTP clients.
const (
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeSchemaMutation = "schema_mutation"
	CodePersistence    = "persistence"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// NotFoundError reports a missing table, column, project or record.
type NotFoundError struct {
	What string // "table", "column", "part", "unit", "list", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.What + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.What, e.Key)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	What string
	Err  error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s conflict: %v", e.What, e.Err)
	}
	return e.What + " conflict"
}

func (e *ConflictError) Unwrap() error { return e.Err }

// SchemaMutationError reports a failure inside a table rebuild. Stage is the
// last stage that completed before the failure.
type SchemaMutationError struct {
	Table string
	Stage string
	Err   error
}

func (e *SchemaMutationError) Error() string {
	return fmt.Sprintf("rebuild of %s failed after stage %s: %v", e.Table, e.Stage, e.Err)
}

func (e *SchemaMutationError) Unwrap() error { return e.Err }

// PersistenceError wraps any other database engine error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code returns the machine-readable code for err.
func Code(err error) string {
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
		se *SchemaMutationError
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &ne):
		return CodeNotFound
	case errors.As(err, &ce):
		return CodeConflict
	case errors.As(err, &se):
		return CodeSchemaMutation
	default:
		return CodePersistence
	}
}

// Classify converts a raw driver error into the taxonomy. Errors that are
// already classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
		se *SchemaMutationError
		pe *PersistenceError
	)
	if errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{What: op}
	}
	if isUniqueViolation(err) {
		return &ConflictError{What: op, Err: err}
	}
	return &PersistenceError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
