package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
)

const instanceColumns = `
	id, definition_id, launched_by, started_at, finished_at,
	created_at, updated_at`

// CreateInstance persists a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kuroko2_instances (
			id, definition_id, launched_by, started_at, finished_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inst.ID.String(), inst.DefinitionID.String(), inst.LaunchedBy.String(),
		inst.StartedAt, inst.FinishedAt, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM kuroko2_instances WHERE id = $1`,
		instanceID.String(),
	)

	inst, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, kuroko2.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("kuroko2/postgres: get instance: %w", err)
	}
	return inst, nil
}

// ListInstancesByDefinition returns all instances of a definition, oldest first.
func (s *Store) ListInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM kuroko2_instances WHERE definition_id = $1 ORDER BY id`,
		definitionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: list instances: %w", err)
	}
	defer rows.Close()

	out := make([]*instance.Instance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("kuroko2/postgres: scan instance: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kuroko2/postgres: iterate instances: %w", err)
	}
	return out, nil
}

// CountInstancesByDefinition returns the number of instances of a definition.
func (s *Store) CountInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM kuroko2_instances WHERE definition_id = $1`,
		definitionID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/postgres: count instances: %w", err)
	}
	return n, nil
}

// FinishInstance stamps the instance's FinishedAt.
func (s *Store) FinishInstance(ctx context.Context, instanceID id.InstanceID, finishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE kuroko2_instances
		SET finished_at = $2, updated_at = NOW()
		WHERE id = $1`,
		instanceID.String(), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: finish instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kuroko2.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstancesByDefinition removes every instance of a definition.
func (s *Store) DeleteInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM kuroko2_instances WHERE definition_id = $1`,
		definitionID.String(),
	)
	if err != nil {
		return fmt.Errorf("kuroko2/postgres: delete instances: %w", err)
	}
	return nil
}

func scanInstance(row pgx.Row) (*instance.Instance, error) {
	var (
		inst          instance.Instance
		rawID         string
		rawDefinition string
		rawLauncher   string
	)
	err := row.Scan(
		&rawID, &rawDefinition, &rawLauncher,
		&inst.StartedAt, &inst.FinishedAt,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if inst.ID, err = id.ParseInstanceID(rawID); err != nil {
		return nil, fmt.Errorf("parse instance id %q: %w", rawID, err)
	}
	if inst.DefinitionID, err = id.ParseDefinitionID(rawDefinition); err != nil {
		return nil, fmt.Errorf("parse definition id %q: %w", rawDefinition, err)
	}
	if rawLauncher != "" {
		if inst.LaunchedBy, err = id.ParseLauncherID(rawLauncher); err != nil {
			return nil, fmt.Errorf("parse launcher id %q: %w", rawLauncher, err)
		}
	}
	return &inst, nil
}
