package gormstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken is returned by CreateUser when the lowercased email
	// already belongs to an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrMigrationFailed wraps any goose failure in Migrate.
	ErrMigrationFailed = errors.New("schema migration failed")
)

// isDuplicateKey reports unique violations. TranslateError covers both
// drivers; the pgconn check catches a *gorm.DB opened without it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
