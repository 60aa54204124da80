// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: atomic upsert-based launch locks, array-typed tag filters,
// embedded SQL migrations.
package postgres
