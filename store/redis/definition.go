package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
)

// tagSeparator joins tags into one hash field. Tags containing the
// separator are the caller's problem; normalization happens upstream.
const tagSeparator = "\x1f"

// CreateDefinition stores the definition as a Hash and indexes its ID.
func (s *Store) CreateDefinition(ctx context.Context, d *definition.Definition) error {
	dID := d.ID.String()
	key := definitionKey(dID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("kuroko2/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return kuroko2.ErrDefinitionExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, definitionToMap(d))
	pipe.ZAdd(ctx, definitionIDsKey, goredis.Z{Score: 0, Member: dID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: create definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	return s.getDefinitionByKey(ctx, definitionKey(definitionID.String()))
}

// UpdateDefinition persists changes after an optimistic version check.
// The check-and-set runs under WATCH so a concurrent update forces a
// version conflict instead of a lost write.
func (s *Store) UpdateDefinition(ctx context.Context, d *definition.Definition) error {
	key := definitionKey(d.ID.String())

	client, ok := s.client.(*goredis.Client)
	if !ok {
		return s.updateDefinitionUnwatched(ctx, key, d)
	}

	err := client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, err := tx.HGet(ctx, key, "version").Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return kuroko2.ErrDefinitionNotFound
			}
			return err
		}
		version, err := strconv.ParseInt(stored, 10, 64)
		if err != nil {
			return fmt.Errorf("parse version %q: %w", stored, err)
		}
		if version != d.Version {
			return kuroko2.ErrVersionConflict
		}

		fields := definitionToMap(d)
		fields["version"] = strconv.FormatInt(version+1, 10)
		fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return kuroko2.ErrVersionConflict
		}
		if errors.Is(err, kuroko2.ErrDefinitionNotFound) || errors.Is(err, kuroko2.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("kuroko2/redis: update definition: %w", err)
	}
	d.Version++
	return nil
}

// updateDefinitionUnwatched is the fallback for Cmdable implementations
// that do not support WATCH (e.g. cluster pipelines in tests).
func (s *Store) updateDefinitionUnwatched(ctx context.Context, key string, d *definition.Definition) error {
	stored, err := s.client.HGet(ctx, key, "version").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return kuroko2.ErrDefinitionNotFound
		}
		return fmt.Errorf("kuroko2/redis: update definition: %w", err)
	}
	version, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return fmt.Errorf("kuroko2/redis: parse version %q: %w", stored, err)
	}
	if version != d.Version {
		return kuroko2.ErrVersionConflict
	}

	fields := definitionToMap(d)
	fields["version"] = strconv.FormatInt(version+1, 10)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("kuroko2/redis: update definition: %w", err)
	}
	d.Version++
	return nil
}

// DeleteDefinition removes a definition and its ID index entry.
func (s *Store) DeleteDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	dID := definitionID.String()
	key := definitionKey(dID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("kuroko2/redis: delete check exists: %w", err)
	}
	if exists == 0 {
		return kuroko2.ErrDefinitionNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, definitionIDsKey, dID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: delete definition: %w", err)
	}
	return nil
}

// ListDefinitions returns definitions ordered by ID. Filtering happens
// client-side; Redis has no secondary query surface for hash fields.
func (s *Store) ListDefinitions(ctx context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	ids, err := s.client.ZRangeByLex(ctx, definitionIDsKey, &goredis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: list definition ids: %w", err)
	}

	matched := make([]*definition.Definition, 0, len(ids))
	for _, dID := range ids {
		d, err := s.getDefinitionByKey(ctx, definitionKey(dID))
		if err != nil {
			if errors.Is(err, kuroko2.ErrDefinitionNotFound) {
				continue
			}
			return nil, err
		}
		if !matchesDefinition(d, opts.Search, opts.Tags) {
			continue
		}
		matched = append(matched, d)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*definition.Definition{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CountDefinitions returns the number of definitions matching the filters.
func (s *Store) CountDefinitions(ctx context.Context, opts definition.CountOpts) (int64, error) {
	if opts.Search == "" && len(opts.Tags) == 0 {
		n, err := s.client.ZCard(ctx, definitionIDsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("kuroko2/redis: count definitions: %w", err)
		}
		return n, nil
	}

	all, err := s.ListDefinitions(ctx, definition.ListOpts{Search: opts.Search, Tags: opts.Tags})
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (s *Store) getDefinitionByKey(ctx context.Context, key string) (*definition.Definition, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: get definition: %w", err)
	}
	if len(fields) == 0 {
		return nil, kuroko2.ErrDefinitionNotFound
	}
	return mapToDefinition(fields)
}

func matchesDefinition(d *definition.Definition, search string, tags []string) bool {
	if search != "" {
		s := strings.ToLower(search)
		if !strings.Contains(strings.ToLower(d.Name), s) &&
			!strings.Contains(strings.ToLower(d.Description), s) {
			return false
		}
	}
	for _, tag := range tags {
		if !d.HasTag(tag) {
			return false
		}
	}
	return true
}

func definitionToMap(d *definition.Definition) map[string]any {
	return map[string]any{
		"id":            d.ID.String(),
		"name":          d.Name,
		"description":   d.Description,
		"script":        d.Script,
		"tags":          strings.Join(d.Tags, tagSeparator),
		"suspended":     boolField(d.Suspended),
		"prevent_multi": strconv.Itoa(int(d.PreventMulti)),
		"version":       strconv.FormatInt(d.Version, 10),
		"created_at":    d.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    d.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToDefinition(fields map[string]string) (*definition.Definition, error) {
	d := &definition.Definition{
		Name:        fields["name"],
		Description: fields["description"],
		Script:      fields["script"],
		Suspended:   fields["suspended"] == "1",
	}

	var err error
	if d.ID, err = id.ParseDefinitionID(fields["id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse definition id %q: %w", fields["id"], err)
	}
	if fields["tags"] != "" {
		d.Tags = strings.Split(fields["tags"], tagSeparator)
	}

	code, err := strconv.Atoi(fields["prevent_multi"])
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse prevent_multi %q: %w", fields["prevent_multi"], err)
	}
	if d.PreventMulti, err = definition.PreventMultiFromCode(code); err != nil {
		return nil, err
	}

	if d.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse version %q: %w", fields["version"], err)
	}
	if d.CreatedAt, err = parseTimeField(fields["created_at"]); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTimeField(fields["updated_at"]); err != nil {
		return nil, err
	}
	return d, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseTimeField(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("kuroko2/redis: parse time %q: %w", v, err)
	}
	return t, nil
}
