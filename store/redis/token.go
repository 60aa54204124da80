package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/token"
)

// AppendToken stores the token as a Hash and indexes it under its instance
// and definition.
func (s *Store) AppendToken(ctx context.Context, t *token.Token) error {
	tID := t.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, tokenKey(tID), tokenToMap(t))
	pipe.SAdd(ctx, instanceTokensKey(t.InstanceID.String()), tID)
	pipe.SAdd(ctx, definitionTokensKey(t.DefinitionID.String()), tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: append token: %w", err)
	}
	return nil
}

// ListTokensByInstance returns all tokens of one instance in Seq order.
func (s *Store) ListTokensByInstance(ctx context.Context, instanceID id.InstanceID) ([]*token.Token, error) {
	toks, err := s.collectTokens(ctx, instanceTokensKey(instanceID.String()))
	if err != nil {
		return nil, err
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i].Seq < toks[j].Seq })
	return toks, nil
}

// ListTokensByDefinition returns all tokens of a definition in emission order.
func (s *Store) ListTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*token.Token, error) {
	toks, err := s.collectTokens(ctx, definitionTokensKey(definitionID.String()))
	if err != nil {
		return nil, err
	}
	sort.Slice(toks, func(i, j int) bool {
		if toks[i].EmittedAt.Equal(toks[j].EmittedAt) {
			return toks[i].ID.String() < toks[j].ID.String()
		}
		return toks[i].EmittedAt.Before(toks[j].EmittedAt)
	})
	return toks, nil
}

// DistinctStatusesByDefinition returns the set of distinct statuses among
// all tokens of the definition's instances.
func (s *Store) DistinctStatusesByDefinition(ctx context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	toks, err := s.collectTokens(ctx, definitionTokensKey(definitionID.String()))
	if err != nil {
		return nil, err
	}
	set := token.StatusSet{}
	for _, t := range toks {
		set[t.Status] = struct{}{}
	}
	return set, nil
}

// CountTokensByDefinition returns the number of tokens of a definition.
func (s *Store) CountTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error) {
	n, err := s.client.SCard(ctx, definitionTokensKey(definitionID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("kuroko2/redis: count tokens: %w", err)
	}
	return n, nil
}

// DeleteTokensByDefinition removes every token of a definition's instances.
func (s *Store) DeleteTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) error {
	idxKey := definitionTokensKey(definitionID.String())
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return fmt.Errorf("kuroko2/redis: list token ids: %w", err)
	}

	// Collect per-instance index keys before deleting the token hashes.
	instanceKeys := make(map[string][]string)
	for _, tID := range ids {
		instID, err := s.client.HGet(ctx, tokenKey(tID), "instance_id").Result()
		if err == nil {
			instanceKeys[instID] = append(instanceKeys[instID], tID)
		}
	}

	pipe := s.client.TxPipeline()
	for _, tID := range ids {
		pipe.Del(ctx, tokenKey(tID))
	}
	for instID, tIDs := range instanceKeys {
		members := make([]any, len(tIDs))
		for i, tID := range tIDs {
			members[i] = tID
		}
		pipe.SRem(ctx, instanceTokensKey(instID), members...)
	}
	pipe.Del(ctx, idxKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kuroko2/redis: delete tokens: %w", err)
	}
	return nil
}

func (s *Store) collectTokens(ctx context.Context, idxKey string) ([]*token.Token, error) {
	ids, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, fmt.Errorf("kuroko2/redis: list token ids: %w", err)
	}

	out := make([]*token.Token, 0, len(ids))
	for _, tID := range ids {
		fields, err := s.client.HGetAll(ctx, tokenKey(tID)).Result()
		if err != nil {
			return nil, fmt.Errorf("kuroko2/redis: get token: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		t, err := mapToToken(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func tokenToMap(t *token.Token) map[string]any {
	return map[string]any{
		"id":            t.ID.String(),
		"instance_id":   t.InstanceID.String(),
		"definition_id": t.DefinitionID.String(),
		"status":        string(t.Status),
		"seq":           strconv.Itoa(t.Seq),
		"emitted_at":    t.EmittedAt.Format(time.RFC3339Nano),
		"created_at":    t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToToken(fields map[string]string) (*token.Token, error) {
	t := &token.Token{Status: token.Status(fields["status"])}

	var err error
	if t.ID, err = id.ParseTokenID(fields["id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse token id %q: %w", fields["id"], err)
	}
	if t.InstanceID, err = id.ParseInstanceID(fields["instance_id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse instance id %q: %w", fields["instance_id"], err)
	}
	if t.DefinitionID, err = id.ParseDefinitionID(fields["definition_id"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse definition id %q: %w", fields["definition_id"], err)
	}
	if t.Seq, err = strconv.Atoi(fields["seq"]); err != nil {
		return nil, fmt.Errorf("kuroko2/redis: parse seq %q: %w", fields["seq"], err)
	}
	if t.EmittedAt, err = parseTimeField(fields["emitted_at"]); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimeField(fields["created_at"]); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTimeField(fields["updated_at"]); err != nil {
		return nil, err
	}
	return t, nil
}
