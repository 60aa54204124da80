package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/makimoto/kuroko2/id"
)

// AcquireLock attempts to take the definition's launch lock for holder
// using SET NX with a TTL. Re-entry by the current holder refreshes the TTL.
func (s *Store) AcquireLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	key := lockKey(definitionID.String())
	hID := holder.String()

	ok, err := s.client.SetNX(ctx, key, hID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kuroko2/redis: acquire lock setnx: %w", err)
	}
	if ok {
		return true, nil
	}

	// Lock exists — check whether we already hold it.
	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Expired between SETNX and GET; retry the claim.
			ok, err := s.client.SetNX(ctx, key, hID, ttl).Result()
			if err != nil {
				return false, fmt.Errorf("kuroko2/redis: acquire lock retry: %w", err)
			}
			return ok, nil
		}
		return false, fmt.Errorf("kuroko2/redis: acquire lock get: %w", err)
	}
	if current != hID {
		return false, nil
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		s.logger.Warn("failed to refresh lock ttl", "error", err)
	}
	return true, nil
}

// RenewLock extends the lock's TTL if holder still holds it.
func (s *Store) RenewLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	key := lockKey(definitionID.String())

	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("kuroko2/redis: renew lock get: %w", err)
	}
	if current != holder.String() {
		return false, nil
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("kuroko2/redis: renew lock expire: %w", err)
	}
	return true, nil
}

// ReleaseLock frees the lock if holder holds it.
func (s *Store) ReleaseLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID) error {
	key := lockKey(definitionID.String())

	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("kuroko2/redis: release lock get: %w", err)
	}
	if current != holder.String() {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kuroko2/redis: release lock del: %w", err)
	}
	return nil
}
