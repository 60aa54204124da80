// Package bunstore implements store.Store on PostgreSQL through the bun ORM.
//
// It targets the same schema as the pgx-based postgres backend, so the two
// are interchangeable against one database. Prefer this backend when the
// surrounding application already manages its database through bun and a
// shared *bun.DB should be reused.
package bunstore
