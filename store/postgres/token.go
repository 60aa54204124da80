package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/token"
)

const tokenColumns = `
	id, instance_id, definition_id, status, seq, emitted_at,
	created_at, updated_at`

// AppendToken persists a new token.
func (s *Store) AppendToken(ctx context.Context, t *token.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kuroko2_tokens (
			id, instance_id, definition_id, status, seq, emitted_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID.String(), t.InstanceID.String(), t.DefinitionID.String(),
		string(t.Status), t.Seq, t.EmittedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: append token: %w", err)
	}
	return nil
}

// ListTokensByInstance returns all tokens of one instance in Seq order.
func (s *Store) ListTokensByInstance(ctx context.Context, instanceID id.InstanceID) ([]*token.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM kuroko2_tokens WHERE instance_id = $1 ORDER BY seq`,
		instanceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: list tokens by instance: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

// ListTokensByDefinition returns all tokens of a definition in emission order.
func (s *Store) ListTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*token.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM kuroko2_tokens WHERE definition_id = $1 ORDER BY emitted_at, id`,
		definitionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: list tokens by definition: %w", err)
	}
	defer rows.Close()

	return collectTokens(rows)
}

// DistinctStatusesByDefinition returns the set of distinct statuses among
// all tokens of the definition's instances.
func (s *Store) DistinctStatusesByDefinition(ctx context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT status FROM kuroko2_tokens WHERE definition_id = $1`,
		definitionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: distinct statuses: %w", err)
	}
	defer rows.Close()

	set := token.StatusSet{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("kuroko2/postgres: scan status: %w", err)
		}
		set[token.Status(raw)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: iterate statuses: %w", err)
	}
	return set, nil
}

// CountTokensByDefinition returns the number of tokens of a definition.
func (s *Store) CountTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM kuroko2_tokens WHERE definition_id = $1`,
		definitionID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/postgres: count tokens: %w", err)
	}
	return n, nil
}

// DeleteTokensByDefinition removes every token of a definition's instances.
func (s *Store) DeleteTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kuroko2_tokens WHERE definition_id = $1`,
		definitionID.String(),
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: delete tokens: %w", err)
	}
	return nil
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var (
		t             token.Token
		rawID         string
		rawInstance   string
		rawDefinition string
		rawStatus     string
	)
	err := row.Scan(
		&rawID, &rawInstance, &rawDefinition, &rawStatus,
		&t.Seq, &t.EmittedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = id.ParseTokenID(rawID); err != nil {
		return nil, fmt.Errorf("parse token id %q: %w", rawID, err)
	}
	if t.InstanceID, err = id.ParseInstanceID(rawInstance); err != nil {
		return nil, fmt.Errorf("parse instance id %q: %w", rawInstance, err)
	}
	if t.DefinitionID, err = id.ParseDefinitionID(rawDefinition); err != nil {
		return nil, fmt.Errorf("parse definition id %q: %w", rawDefinition, err)
	}
	t.Status = token.Status(rawStatus)
	return &t, nil
}

func collectTokens(rows pgx.Rows) ([]*token.Token, error) {
	out := make([]*token.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("kuroko2/postgres: scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: iterate tokens: %w", err)
	}
	return out, nil
}
