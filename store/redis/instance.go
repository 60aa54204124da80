package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
)

// CreateInstance stores the instance as a Hash and indexes it under its
// definition.
func (s *Store) CreateInstance(ctx context.Context, inst *instance.Instance) error {
	iID := inst.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, instanceKey(iID), instanceToMap(inst))
	pipe.SAdd(ctx, definitionInstancesKey(inst.DefinitionID.String()), iID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	fields, err := s.client.HGetAll(ctx, instanceKey(instanceID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: get instance: %w", err)
	}
	if len(fields) == 0 {
		return nil, kuroko2.ErrInstanceNotFound
	}
	return mapToInstance(fields)
}

// ListInstancesByDefinition returns all instances of a definition, oldest first.
func (s *Store) ListInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	ids, err := s.client.SMembers(ctx, definitionInstancesKey(definitionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: list instance ids: %w", err)
	}
	sort.Strings(ids)

	out := make([]*instance.Instance, 0, len(ids))
	for _, iID := range ids {
		fields, err := s.client.HGetAll(ctx, instanceKey(iID)).Result()
		if err != nil {
			return nil, fmt.Errorf("kuroko2/redis: get instance: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		inst, err := mapToInstance(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// CountInstancesByDefinition returns the number of instances of a definition.
func (s *Store) CountInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.client.SCard(ctx, definitionInstancesKey(definitionID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("kuroko2/redis: count instances: %w", err)
	}
	return n, nil
}

// FinishInstance stamps the instance's FinishedAt.
func (s *Store) FinishInstance(ctx context.Context, instanceID id.InstanceID, finishedAt time.Time) error {
	key := instanceKey(instanceID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("kuroko2/redis: finish check exists: %w", err)
	}
	if exists == 0 {
		return kuroko2.ErrInstanceNotFound
	}

	now := time.Now().UTC()
	_, err = s.client.HSet(ctx, key,
		"finished_at", finishedAt.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("kuroko2/redis: finish instance: %w", err)
	}
	return nil
}

// DeleteInstancesByDefinition removes every instance of a definition.
func (s *Store) DeleteInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	idxKey := definitionInstancesKey(definitionID.String())
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("kuroko2/redis: list instance ids: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, iID := range ids {
		pipe.Del(ctx, instanceKey(iID))
	}
	pipe.Del(ctx, idxKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: delete instances: %w", err)
	}
	return nil
}

func instanceToMap(inst *instance.Instance) map[string]any {
	m := map[string]any{
		"id":            inst.ID.String(),
		"definition_id": inst.DefinitionID.String(),
		"launched_by":   inst.LaunchedBy.String(),
		"started_at":    inst.StartedAt.Format(time.RFC3339Nano),
		"created_at":    inst.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    inst.UpdatedAt.Format(time.RFC3339Nano),
	}
	if inst.FinishedAt != nil {
		m["finished_at"] = inst.FinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToInstance(fields map[string]string) (*instance.Instance, error) {
	inst := &instance.Instance{}

	var err error
	if inst.ID, err = id.ParseInstanceID(fields["id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse instance id %q: %w", fields["id"], err)
	}
	if inst.DefinitionID, err = id.ParseDefinitionID(fields["definition_id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse definition id %q: %w", fields["definition_id"], err)
	}
	if v := fields["launched_by"]; v != "" {
		if inst.LaunchedBy, err = id.ParseLauncherID(v); err != nil {
			return nil, fmt.Errorf("kuroko2/redis: parse launcher id %q: %w", v, err)
		}
	}
	if inst.StartedAt, err = parseTimeField(fields["started_at"]); err != nil {
		return nil, err
	}
	if v := fields["finished_at"]; v != "" {
		t, err := parseTimeField(v)
		if err != nil {
			return nil, err
		}
		inst.FinishedAt = &t
	}
	if inst.CreatedAt, err = parseTimeField(fields["created_at"]); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = parseTimeField(fields["updated_at"]); err != nil {
		return nil, err
	}
	return inst, nil
}
