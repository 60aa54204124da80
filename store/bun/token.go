package bunstore

import (
	"context"
	"fmt"

	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/token"
)

// AppendToken persists a new token.
func (s *Store) AppendToken(ctx context.Context, t *token.Token) error {
	_, err := s.db.NewInsert().
		Model(toTokenModel(t)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: append token: %w", err)
	}
	return nil
}

// ListTokensByInstance returns all tokens of one instance in Seq order.
func (s *Store) ListTokensByInstance(ctx context.Context, instanceID id.InstanceID) ([]*token.Token, error) {
	models := make([]*tokenModel, 0)
	err := s.db.NewSelect().
		Model(&models).
		Where("instance_id = ?", instanceID.String()).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: list tokens: %w", err)
	}
	return collectTokens(models)
}

// ListTokensByDefinition returns all tokens of a definition in emission order.
func (s *Store) ListTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*token.Token, error) {
	models := make([]*tokenModel, 0)
	err := s.db.NewSelect().
		Model(&models).
		Where("definition_id = ?", definitionID.String()).
		Order("emitted_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: list tokens: %w", err)
	}
	return collectTokens(models)
}

// DistinctStatusesByDefinition returns the set of distinct statuses among
// all tokens of the definition's instances.
func (s *Store) DistinctStatusesByDefinition(ctx context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	var statuses []string
	err := s.db.NewSelect().
		Model((*tokenModel)(nil)).
		ColumnExpr("DISTINCT status").
		Where("definition_id = ?", definitionID.String()).
		Scan(ctx, &statuses)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: distinct statuses: %w", err)
	}

	set := token.StatusSet{}
	for _, v := range statuses {
		set[token.Status(v)] = struct{}{}
	}
	return set, nil
}

// CountTokensByDefinition returns the number of tokens of a definition.
func (s *Store) CountTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.db.NewSelect().
		Model((*tokenModel)(nil)).
		Where("definition_id = ?", definitionID.String()).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/bun: count tokens: %w", err)
	}
	return int64(n), nil
}

// DeleteTokensByDefinition removes every token of a definition's instances.
func (s *Store) DeleteTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.db.NewDelete().
		Model((*tokenModel)(nil)).
		Where("definition_id = ?", definitionID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: delete tokens: %w", err)
	}
	return nil
}

func collectTokens(models []*tokenModel) ([]*token.Token, error) {
	out := make([]*token.Token, 0, len(models))
	for _, m := range models {
		t, err := fromTokenModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
