package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
)

const definitionColumns = `
	id, name, description, script, tags, suspended, prevent_multi, version,
	created_at, updated_at`

// CreateDefinition persists a new definition.
func (s *Store) CreateDefinition(ctx context.Context, d *definition.Definition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kuroko2_definitions (
			id, name, description, script, tags, suspended, prevent_multi,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID.String(), d.Name, d.Description, d.Script, d.Tags,
		d.Suspended, int(d.PreventMulti), d.Version,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return kuroko2.ErrDefinitionExists
		}
		return fmt.Errorf("kuroko2/postgres: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM kuroko2_definitions WHERE id = $1`,
		definitionID.String(),
	)

	d, err := scanDefinition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, kuroko2.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("kuroko2/postgres: get definition: %w", err)
	}
	return d, nil
}

// UpdateDefinition persists changes after an optimistic version check.
// The WHERE clause compares the stored version; zero rows affected means
// either the definition is gone or the version moved on.
func (s *Store) UpdateDefinition(ctx context.Context, d *definition.Definition) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE kuroko2_definitions SET
			name = $2, description = $3, script = $4, tags = $5,
			suspended = $6, prevent_multi = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $8`,
		d.ID.String(), d.Name, d.Description, d.Script, d.Tags,
		d.Suspended, int(d.PreventMulti), d.Version,
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: update definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM kuroko2_definitions WHERE id = $1)`,
			d.ID.String(),
		).Scan(&exists); err != nil {
			return fmt.Errorf("kuroko2/postgres: check definition: %w", err)
		}
		if !exists {
			return kuroko2.ErrDefinitionNotFound
		}
		return kuroko2.ErrVersionConflict
	}
	d.Version++
	return nil
}

// DeleteDefinition removes a definition by ID.
func (s *Store) DeleteDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM kuroko2_definitions WHERE id = $1`,
		definitionID.String(),
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: delete definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kuroko2.ErrDefinitionNotFound
	}
	return nil
}

// ListDefinitions returns definitions ordered by ID, honoring filters and
// pagination.
func (s *Store) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	where, args := definitionFilters(opts.Search, opts.Tags)

	q := `SELECT ` + definitionColumns + ` FROM kuroko2_definitions` + where + ` ORDER BY id`
	if opts.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(opts.Limit)
	}
	if opts.Offset > 0 {
		q += ` OFFSET ` + strconv.Itoa(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: list definitions: %w", err)
	}
	defer rows.Close()

	return collectDefinitions(rows)
}

// CountDefinitions returns the number of definitions matching the filters.
func (s *Store) CountDefinitions(ctx context.Context, opts definition.CountOpts) (int64, error) {
	where, args := definitionFilters(opts.Search, opts.Tags)

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM kuroko2_definitions`+where, args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/postgres: count definitions: %w", err)
	}
	return n, nil
}

// definitionFilters builds the WHERE clause shared by list and count.
func definitionFilters(search string, tags []string) (string, []any) {
	var conds []string
	var args []any

	if search != "" {
		args = append(args, "%"+search+"%")
		p := strconv.Itoa(len(args))
		conds = append(conds, `(name ILIKE $`+p+` OR description ILIKE $`+p+`)`)
	}
	if len(tags) > 0 {
		args = append(args, tags)
		conds = append(conds, `tags @> $`+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanDefinition(row pgx.Row) (*definition.Definition, error) {
	var (
		d            definition.Definition
		rawID        string
		preventMulti int
	)
	err := row.Scan(
		&rawID, &d.Name, &d.Description, &d.Script, &d.Tags,
		&d.Suspended, &preventMulti, &d.Version,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.ID, err = id.ParseDefinitionID(rawID); err != nil {
		return nil, fmt.Errorf("parse definition id %q: %w", rawID, err)
	}
	mode, err := definition.PreventMultiFromCode(preventMulti)
	if err != nil {
		return nil, err
	}
	d.PreventMulti = mode
	return &d, nil
}

func collectDefinitions(rows pgx.Rows) ([]*definition.Definition, error) {
	out := make([]*definition.Definition, 0)
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("kuroko2/postgres: scan definition: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: iterate definitions: %w", err)
	}
	return out, nil
}
