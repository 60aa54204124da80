// Package store defines the aggregate persistence interface. Each subsystem
// (definition, instance, token, lock) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, Bun, Redis, Mongo,
// and Memory.
package store

import (
	"context"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/lock"
	"github.com/makimoto/kuroko2/token"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, bun, redis, mongo, memory) implements all of them.
type Store interface {
	definition.Store
	instance.Store
	token.Store
	lock.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
