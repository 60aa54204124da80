package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/makimoto/kuroko2/id"
)

// AcquireLock attempts to take the definition's launch lock for holder.
// A single upsert claims the lock; its filter only matches a document that
// is absent, expired, or already held by the same holder, so a live foreign
// lock produces a duplicate key error instead of an overwrite.
func (s *Store) AcquireLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	_, err := s.db.Collection(colLocks).UpdateOne(ctx,
		bson.M{
			"_id": definitionID.String(),
			"$or": bson.A{
				bson.M{"holder": holder.String()},
				bson.M{"expires_at": bson.M{"$lt": now}},
			},
		},
		bson.M{"$set": bson.M{
			"holder":     holder.String(),
			"expires_at": now.Add(ttl),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		if isDuplicateKey(err) {
			// Another holder's unexpired lock occupies the _id.
			return false, nil
		}
		return false, fmt.Errorf("kuroko2/mongo: acquire lock: %w", err)
	}
	return true, nil
}

// RenewLock extends the lock's expiry if holder still holds it.
func (s *Store) RenewLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.Collection(colLocks).UpdateOne(ctx,
		bson.M{
			"_id":        definitionID.String(),
			"holder":     holder.String(),
			"expires_at": bson.M{"$gte": now},
		},
		bson.M{"$set": bson.M{"expires_at": now.Add(ttl)}},
	)
	if err != nil {
		return false, fmt.Errorf("kuroko2/mongo: renew lock: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// ReleaseLock frees the lock if holder holds it.
func (s *Store) ReleaseLock(ctx context.Context, definitionID id.DefinitionID, holder id.LauncherID) error {
	_, err := s.db.Collection(colLocks).DeleteOne(ctx, bson.M{
		"_id":    definitionID.String(),
		"holder": holder.String(),
	})
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: release lock: %w", err)
	}
	return nil
}
