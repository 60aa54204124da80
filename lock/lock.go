// Package lock defines the store contract for per-definition TTL locks.
//
// A lock serializes the admission check and the instance-creation write
// across processes: the launcher acquires the definition's lock, reads the
// token snapshot, decides, creates the instance, and releases. The TTL
// bounds how long a crashed holder can wedge a definition.
package lock

import (
	"context"
	"time"

	"github.com/makimoto/kuroko2/id"
)

// Store defines the persistence contract for definition locks.
type Store interface {
	// AcquireLock attempts to take the definition's lock for holder.
	// Returns true if the lock is now held by holder, either freshly
	// acquired or re-entered while still valid. An expired lock is claimable
	// by any holder.
	AcquireLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error)

	// RenewLock extends the lock's expiry. Returns false if holder no longer
	// holds the lock.
	RenewLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error)

	// ReleaseLock frees the lock if holder holds it. Releasing a lock held
	// by someone else, or not held at all, is a no-op.
	ReleaseLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID) error
}
