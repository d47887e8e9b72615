// Package gormstore is the SQL-backed durable store for goGuard: users with
// Argon2id password hashes and sealed TOTP secrets, recovery code hashes,
// failed-attempt counters and role membership.
//
// A *Store satisfies goGuard.CredentialStore, goGuard.LockoutStore,
// goGuard.AccountAdminStore and goGuard.PasswordEqualizer. It runs on
// PostgreSQL in production and on SQLite in tests; the schema is applied by
// [Migrate] from embedded goose migrations.
//
// Recovery code consumption is a single conditional UPDATE, so concurrent
// consumers of one code see exactly one success. Failed-attempt counting
// increments the row inside a transaction, which holds the row lock until
// the lockout decision is written.
package gormstore
