package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/token"
)

// AppendToken persists a new token.
func (s *Store) AppendToken(ctx context.Context, t *token.Token) error {
	_, err := s.db.Collection(colTokens).InsertOne(ctx, toTokenModel(t))
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: append token: %w", err)
	}
	return nil
}

// ListTokensByInstance returns all tokens of one instance in Seq order.
func (s *Store) ListTokensByInstance(ctx context.Context, instanceID id.InstanceID) ([]*token.Token, error) {
	return s.findTokens(ctx,
		bson.M{"instance_id": instanceID.String()},
		bson.D{{Key: "seq", Value: 1}},
	)
}

// ListTokensByDefinition returns all tokens of a definition in emission order.
func (s *Store) ListTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*token.Token, error) {
	return s.findTokens(ctx,
		bson.M{"definition_id": definitionID.String()},
		bson.D{{Key: "emitted_at", Value: 1}, {Key: "_id", Value: 1}},
	)
}

// DistinctStatusesByDefinition returns the set of distinct statuses among
// all tokens of the definition's instances.
func (s *Store) DistinctStatusesByDefinition(ctx context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	res := s.db.Collection(colTokens).
		Distinct(ctx, "status", bson.M{"definition_id": definitionID.String()})
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: distinct statuses: %w", err)
	}

	var raw []string
	if err := res.Decode(&raw); err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: decode statuses: %w", err)
	}

	set := token.StatusSet{}
	for _, v := range raw {
		set[token.Status(v)] = struct{}{}
	}
	return set, nil
}

// CountTokensByDefinition returns the number of tokens of a definition.
func (s *Store) CountTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.db.Collection(colTokens).
		CountDocuments(ctx, bson.M{"definition_id": definitionID.String()})
	if err != nil {
		return 0, fmt.Errorf("kuroko2/mongo: count tokens: %w", err)
	}
	return n, nil
}

// DeleteTokensByDefinition removes every token of a definition's instances.
func (s *Store) DeleteTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.db.Collection(colTokens).
		DeleteMany(ctx, bson.M{"definition_id": definitionID.String()})
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: delete tokens: %w", err)
	}
	return nil
}

func (s *Store) findTokens(ctx context.Context, filter bson.M, sort bson.D) ([]*token.Token, error) {
	cursor, err := s.db.Collection(colTokens).
		Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: list tokens: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*token.Token, 0)
	for cursor.Next(ctx) {
		var m tokenModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("kuroko2/mongo: decode token: %w", err)
		}
		t, err := fromTokenModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: iterate tokens: %w", err)
	}
	return out, nil
}
