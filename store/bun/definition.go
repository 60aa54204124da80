package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
)

// CreateDefinition persists a new definition.
func (s *Store) CreateDefinition(ctx context.Context, d *definition.Definition) error {
	_, err := s.db.NewInsert().
		Model(toDefinitionModel(d)).
		Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return kuroko2.ErrDefinitionExists
		}
		return fmt.Errorf("kuroko2/bun: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	m := new(definitionModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", definitionID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, kuroko2.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("kuroko2/bun: get definition: %w", err)
	}
	return fromDefinitionModel(m)
}

// UpdateDefinition persists changes after an optimistic version check. The
// WHERE clause carries the expected version so a concurrent writer makes
// the update match zero rows instead of overwriting.
func (s *Store) UpdateDefinition(ctx context.Context, d *definition.Definition) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*definitionModel)(nil)).
		Set("name = ?", d.Name).
		Set("description = ?", d.Description).
		Set("script = ?", d.Script).
		Set("tags = ?", pgdialect.Array(d.Tags)).
		Set("suspended = ?", d.Suspended).
		Set("prevent_multi = ?", int(d.PreventMulti)).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", d.ID.String()).
		Where("version = ?", d.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: update definition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kuroko2/bun: update definition: %w", err)
	}
	if affected == 0 {
		exists, err := s.db.NewSelect().
			Model((*definitionModel)(nil)).
			Where("id = ?", d.ID.String()).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("kuroko2/bun: check definition: %w", err)
		}
		if !exists {
			return kuroko2.ErrDefinitionNotFound
		}
		return kuroko2.ErrVersionConflict
	}

	d.Version++
	d.UpdatedAt = now
	return nil
}

// DeleteDefinition removes a definition by ID.
func (s *Store) DeleteDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	res, err := s.db.NewDelete().
		Model((*definitionModel)(nil)).
		Where("id = ?", definitionID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: delete definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kuroko2/bun: delete definition: %w", err)
	}
	if affected == 0 {
		return kuroko2.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns definitions ordered by ID, honoring filters and
// pagination.
func (s *Store) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	models := make([]*definitionModel, 0)
	q := s.db.NewSelect().
		Model(&models).
		Order("id ASC")
	q = applyDefinitionFilters(q, opts.Search, opts.Tags)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("kuroko2/bun: list definitions: %w", err)
	}

	out := make([]*definition.Definition, 0, len(models))
	for _, m := range models {
		d, err := fromDefinitionModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CountDefinitions returns the number of definitions matching the filters.
func (s *Store) CountDefinitions(ctx context.Context, opts definition.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*definitionModel)(nil))
	q = applyDefinitionFilters(q, opts.Search, opts.Tags)

	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/bun: count definitions: %w", err)
	}
	return int64(n), nil
}

// applyDefinitionFilters attaches the search and tag predicates shared by
// list and count.
func applyDefinitionFilters(q *bun.SelectQuery, search string, tags []string) *bun.SelectQuery {
	if search != "" {
		pattern := "%" + search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("name ILIKE ?", pattern).
				WhereOr("description ILIKE ?", pattern)
		})
	}
	if len(tags) > 0 {
		q = q.Where("tags @> ?", pgdialect.Array(tags))
	}
	return q
}
