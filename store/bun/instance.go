package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
)

// CreateInstance persists a new instance.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	_, err := s.db.NewInsert().
		Model(toInstanceModel(inst)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	m := new(instanceModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", instanceID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, kuroko2.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("kuroko2/bun: get instance: %w", err)
	}
	return fromInstanceModel(m)
}

// ListInstancesByDefinition returns all instances of a definition, oldest first.
func (s *Store) ListInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	models := make([]*instanceModel, 0)
	err := s.db.NewSelect().
		Model(&models).
		Where("definition_id = ?", definitionID.String()).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: list instances: %w", err)
	}

	out := make([]*instance.Instance, 0, len(models))
	for _, m := range models {
		inst, err := fromInstanceModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// CountInstancesByDefinition returns the number of instances of a definition.
func (s *Store) CountInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.db.NewSelect().
		Model((*instanceModel)(nil)).
		Where("definition_id = ?", definitionID.String()).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("kuroko2/bun: count instances: %w", err)
	}
	return int64(n), nil
}

// FinishInstance stamps the instance's FinishedAt.
func (s *Store) FinishInstance(ctx context.Context, instanceID id.InstanceID, finishedAt time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*instanceModel)(nil)).
		Set("finished_at = ?", finishedAt).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: finish instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kuroko2/bun: finish instance: %w", err)
	}
	if affected == 0 {
		return kuroko2.ErrInstanceNotFound
	}
	return nil
}

// DeleteInstancesByDefinition removes every instance of a definition.
func (s *Store) DeleteInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	_, err := s.db.NewDelete().
		Model((*instanceModel)(nil)).
		Where("definition_id = ?", definitionID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("kuroko2/bun: delete instances: %w", err)
	}
	return nil
}
