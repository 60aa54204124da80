package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
)

// CreateDefinition persists a new definition.
func (s *Store) CreateDefinition(ctx context.Context, d *definition.Definition) error {
	_, err := s.db.Collection(colDefinitions).InsertOne(ctx, toDefinitionModel(d))
	if err != nil {
		if isDuplicateKey(err) {
			return kuroko2.ErrDefinitionExists
		}
		return fmt.Errorf("kuroko2/mongo: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	var m definitionModel
	err := s.db.Collection(colDefinitions).
		FindOne(ctx, bson.M{"_id": definitionID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, kuroko2.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("kuroko2/mongo: get definition: %w", err)
	}
	return fromDefinitionModel(&m)
}

// UpdateDefinition persists changes after an optimistic version check.
// The filter includes the expected version so a concurrent update matches
// zero documents instead of overwriting.
func (s *Store) UpdateDefinition(ctx context.Context, d *definition.Definition) error {
	res, err := s.db.Collection(colDefinitions).UpdateOne(ctx,
		bson.M{"_id": d.ID.String(), "version": d.Version},
		bson.M{
			"$set": bson.M{
				"name":          d.Name,
				"description":   d.Description,
				"script":        d.Script,
				"tags":          d.Tags,
				"suspended":     d.Suspended,
				"prevent_multi": int(d.PreventMulti),
				"updated_at":    time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: update definition: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.db.Collection(colDefinitions).
			CountDocuments(ctx, bson.M{"_id": d.ID.String()})
		if err != nil {
			return fmt.Errorf("kuroko2/mongo: check definition: %w", err)
		}
		if n == 0 {
			return kuroko2.ErrDefinitionNotFound
		}
		return kuroko2.ErrVersionConflict
	}
	d.Version++
	return nil
}

// DeleteDefinition removes a definition by ID.
func (s *Store) DeleteDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	res, err := s.db.Collection(colDefinitions).
		DeleteOne(ctx, bson.M{"_id": definitionID.String()})
	if err != nil {
		return fmt.Errorf("kuroko2/mongo: delete definition: %w", err)
	}
	if res.DeletedCount == 0 {
		return kuroko2.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns definitions ordered by ID, honoring filters and
// pagination.
func (s *Store) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colDefinitions).
		Find(ctx, definitionFilter(opts.Search, opts.Tags), findOpts)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: list definitions: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]*definition.Definition, 0)
	for cursor.Next(ctx) {
		var m definitionModel
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("kuroko2/mongo: decode definition: %w", err)
		}
		d, err := fromDefinitionModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: iterate definitions: %w", err)
	}
	return out, nil
}

// CountDefinitions returns the number of definitions matching the filters.
func (s *Store) CountDefinitions(ctx context.Context, opts definition.CountOpts) (int64, error) {
	n, err := s.db.Collection(colDefinitions).
		CountDocuments(ctx, definitionFilter(opts.Search, opts.Tags))
	if err != nil {
		return 0, fmt.Errorf("kuroko2/mongo: count definitions: %w", err)
	}
	return n, nil
}

// definitionFilter builds the query filter shared by list and count.
func definitionFilter(search string, tags []string) bson.M {
	filter := bson.M{}
	if search != "" {
		pattern := bson.M{"$regex": search, "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		}
	}
	if len(tags) > 0 {
		filter["tags"] = bson.M{"$all": tags}
	}
	return filter
}
