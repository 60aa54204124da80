package bunstore

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
	expires := time.Now().UTC().Add(ttl)
	res, err := s.db.NewInsert().
		Model(&lockModel{
			DefinitionID: definitionID.String(),
			Holder:       holder.String(),
			ExpiresAt:    expires,
		}).
		On("CONFLICT (definition_id) DO UPDATE").
		Set("holder = EXCLUDED.holder").
		Set("expires_at = EXCLUDED.expires_at").
		Where("kuroko2_locks.holder = EXCLUDED.holder").
		WhereOr("kuroko2_locks.expires_at < NOW()").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("kuroko2/bun: acquire lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("kuroko2/bun: acquire lock: %w", err)
	}
	return affected > 0, nil
}

// RenewLock extends the lock's expiry if holder still holds it.
func (s *Store) RenewLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*lockModel)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(ttl)).
		Where("definition_id = ?", definitionID.String()).
		Where("holder = ?", holder.String()).
		Where("expires_at >= NOW()").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("kuroko2/bun: renew lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("kuroko2/bun: renew lock: %w", err)
	}
	return affected > 0, nil
}

// ReleaseLock frees the lock if holder holds it.
func (s *Store) ReleaseLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID) error {
	_, err := s.db.NewDelete().
		Model((*lockModel)(nil)).
		Where("definition_id = ?", definitionID.String()).
		Where("holder = ?", holder.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: release lock: %w", err)
	}
	return nil
}
