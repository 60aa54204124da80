package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
)

// CreateInstance persists a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.db.Collection(colInstances).InsertOne(ctx, toInstanceModel(inst))
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	var m instanceModel
	err := s.db.Collection(colInstances).
		FindOne(ctx, bson.M{"_id": instanceID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, kuroko2.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("kuroko2/mongo: get instance: %w", err)
	}
	return fromInstanceModel(&m)
}

// ListInstancesByDefinition returns all instances of a definition, oldest first.
func (s *Store) ListInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	cursor, err := s.db.Collection(colInstances).Find(ctx,
		bson.M{"definition_id": definitionID.String()},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: list instances: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*instance.Instance, 0)
	for cursor.Next(ctx) {
		var m instanceModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("kuroko2/mongo: decode instance: %w", err)
		}
		inst, err := fromInstanceModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: iterate instances: %w", err)
	}
	return out, nil
}

// CountInstancesByDefinition returns the number of instances of a definition.
func (s *Store) CountInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.db.Collection(colInstances).
		CountDocuments(ctx, bson.M{"definition_id": definitionID.String()})
	if err != nil {
		return 0, fmt.Errorf("kuroko2/mongo: count instances: %w", err)
	}
	return n, nil
}

// FinishInstance stamps the instance's FinishedAt.
func (s *Store) FinishInstance(ctx context.Context, instanceID id.InstanceID, finishedAt time.Time) error {
	res, err := s.db.Collection(colInstances).UpdateOne(ctx,
		bson.M{"_id": instanceID.String()},
		bson.M{"$set": bson.M{
			"finished_at": finishedAt,
			"updated_at":  time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: finish instance: %w", err)
	}
	if res.MatchedCount == 0 {
		return kuroko2.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstancesByDefinition removes every instance of a definition.
func (s *Store) DeleteInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.db.Collection(colInstances).
		DeleteMany(ctx, bson.M{"definition_id": definitionID.String()})
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: delete instances: %w", err)
	}
	return nil
}
