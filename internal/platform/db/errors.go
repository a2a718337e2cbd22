package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// UniqueViolation reports whether err is a unique-constraint violation and
// names the violated constraint.
func UniqueViolation(err error) (constraint string, ok bool) {
	return pgViolation(err, codeUniqueViolation)
}

// ForeignKeyViolation reports whether err is a foreign-key violation and
// names the violated constraint.
func ForeignKeyViolation(err error) (constraint string, ok bool) {
	return pgViolation(err, codeForeignKeyViolation)
}

func pgViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsNoRows reports whether err means a single-row query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
