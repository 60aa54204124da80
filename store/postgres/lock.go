package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/makimoto/kuroko2/id"
)

// AcquireLock attempts to take the definition's launch lock for holder.
// A single upsert claims the lock when the row is absent, expired, or
// already held by the same holder.
func (s *Store) AcquireLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO kuroko2_locks (definition_id, holder, expires_at)
		VALUES ($1, $2, NOW() + $3)
		ON CONFLICT (definition_id) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE kuroko2_locks.holder = EXCLUDED.holder
		   OR kuroko2_locks.expires_at < NOW()`,
		definitionID.String(), holder.String(), ttl,
	)
	if err != nil {
		return false, fmt.Errorf("kuroko2/postgres: acquire lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RenewLock extends the lock's expiry if holder still holds it.
func (s *Store) RenewLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE kuroko2_locks
		SET expires_at = NOW() + $3
		WHERE definition_id = $1 AND holder = $2 AND expires_at >= NOW()`,
		definitionID.String(), holder.String(), ttl,
	)
	if err != nil {
		return false, fmt.Errorf("kuroko2/postgres: renew lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLock frees the lock if holder holds it.
func (s *Store) ReleaseLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kuroko2_locks WHERE definition_id = $1 AND holder = $2`,
		definitionID.String(), holder.String(),
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: release lock: %w", err)
	}
	return nil
}
