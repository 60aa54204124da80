// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/lock"
	"github.com/makimoto/kuroko2/token"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ definition.Store = (*Store)(nil)
	_ instance.Store   = (*Store)(nil)
	_ token.Store      = (*Store)(nil)
	_ lock.Store       = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	definitions map[string]*definition.Definition
	instances   map[string]*instance.Instance
	tokens      map[string][]*token.Token // key: instance ID
	locks       map[string]*lockEntry     // key: definition ID
}

type lockEntry struct {
	holder  id.LauncherID
	expires time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		definitions: make(map[string]*definition.Definition),
		instances:   make(map[string]*instance.Instance),
		tokens:      make(map[string][]*token.Token),
		locks:       make(map[string]*lockEntry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Definition Store
// ──────────────────────────────────────────────────

// CreateDefinition persists a new definition.
func (m *Store) CreateDefinition(_ context.Context, d *definition.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if _, exists := m.definitions[key]; exists {
		return kuroko2.ErrDefinitionExists
	}
	cp := cloneDefinition(d)
	m.definitions[key] = cp
	return nil
}

// GetDefinition retrieves a definition by ID.
func (m *Store) GetDefinition(_ context.Context, definitionID id.DefinitionID) (*definition.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.definitions[definitionID.String()]
	if !ok {
		return nil, kuroko2.ErrDefinitionNotFound
	}
	return cloneDefinition(d), nil
}

// UpdateDefinition persists changes after an optimistic version check.
func (m *Store) UpdateDefinition(_ context.Context, d *definition.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	stored, ok := m.definitions[key]
	if !ok {
		return kuroko2.ErrDefinitionNotFound
	}
	if stored.Version != d.Version {
		return kuroko2.ErrVersionConflict
	}
	cp := cloneDefinition(d)
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.definitions[key] = cp
	d.Version = cp.Version
	d.UpdatedAt = cp.UpdatedAt
	return nil
}

// DeleteDefinition removes a definition by ID.
func (m *Store) DeleteDefinition(_ context.Context, definitionID id.DefinitionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := definitionID.String()
	if _, ok := m.definitions[key]; !ok {
		return kuroko2.ErrDefinitionNotFound
	}
	delete(m.definitions, key)
	return nil
}

// ListDefinitions returns definitions ordered by ID, honoring filters and
// pagination.
func (m *Store) ListDefinitions(_ context.Context, opts definition.ListOpts) ([]*definition.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*definition.Definition, 0, len(m.definitions))
	for _, d := range m.definitions {
		if !matchesDefinition(d, opts.Search, opts.Tags) {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*definition.Definition{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	out := make([]*definition.Definition, len(matched))
	for i, d := range matched {
		out[i] = cloneDefinition(d)
	}
	return out, nil
}

// CountDefinitions returns the number of definitions matching the filters.
func (m *Store) CountDefinitions(_ context.Context, opts definition.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, d := range m.definitions {
		if matchesDefinition(d, opts.Search, opts.Tags) {
			n++
		}
	}
	return n, nil
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

// ──────────────────────────────────────────────────
// Instance Store
// ──────────────────────────────────────────────────

// CreateInstance persists a new instance.
func (m *Store) CreateInstance(_ context.Context, inst *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneInstance(inst)
	m.instances[inst.ID.String()] = cp
	return nil
}

// GetInstance retrieves an instance by ID.
func (m *Store) GetInstance(_ context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[instanceID.String()]
	if !ok {
		return nil, kuroko2.ErrInstanceNotFound
	}
	return cloneInstance(inst), nil
}

// ListInstancesByDefinition returns all instances of a definition, oldest first.
func (m *Store) ListInstancesByDefinition(_ context.Context, definitionID id.DefinitionID) ([]*instance.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*instance.Instance, 0)
	for _, inst := range m.instances {
		if inst.DefinitionID == definitionID {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// CountInstancesByDefinition returns the number of instances of a definition.
func (m *Store) CountInstancesByDefinition(_ context.Context, definitionID id.DefinitionID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, inst := range m.instances {
		if inst.DefinitionID == definitionID {
			n++
		}
	}
	return n, nil
}

// FinishInstance stamps the instance's FinishedAt.
func (m *Store) FinishInstance(_ context.Context, instanceID id.InstanceID, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[instanceID.String()]
	if !ok {
		return kuroko2.ErrInstanceNotFound
	}
	t := finishedAt
	inst.FinishedAt = &t
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteInstancesByDefinition removes every instance of a definition.
func (m *Store) DeleteInstancesByDefinition(_ context.Context, definitionID id.DefinitionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, inst := range m.instances {
		if inst.DefinitionID == definitionID {
			delete(m.instances, key)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Token Store
// ──────────────────────────────────────────────────

// AppendToken persists a new token.
func (m *Store) AppendToken(_ context.Context, t *token.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.InstanceID.String()
	cp := *t
	m.tokens[key] = append(m.tokens[key], &cp)
	return nil
}

// ListTokensByInstance returns all tokens of one instance in Seq order.
func (m *Store) ListTokensByInstance(_ context.Context, instanceID id.InstanceID) ([]*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	toks := m.tokens[instanceID.String()]
	out := make([]*token.Token, len(toks))
	for i, t := range toks {
		cp := *t
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ListTokensByDefinition returns all tokens of a definition in emission order.
func (m *Store) ListTokensByDefinition(_ context.Context, definitionID id.DefinitionID) ([]*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*token.Token, 0)
	for _, toks := range m.tokens {
		for _, t := range toks {
			if t.DefinitionID == definitionID {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmittedAt.Equal(out[j].EmittedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].EmittedAt.Before(out[j].EmittedAt)
	})
	return out, nil
}

// DistinctStatusesByDefinition returns the set of distinct statuses among
// all tokens of the definition's instances.
func (m *Store) DistinctStatusesByDefinition(_ context.Context, definitionID id.DefinitionID) (token.StatusSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := token.StatusSet{}
	for _, toks := range m.tokens {
		for _, t := range toks {
			if t.DefinitionID == definitionID {
				set[t.Status] = struct{}{}
			}
		}
	}
	return set, nil
}

// CountTokensByDefinition returns the number of tokens of a definition.
func (m *Store) CountTokensByDefinition(_ context.Context, definitionID id.DefinitionID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, toks := range m.tokens {
		for _, t := range toks {
			if t.DefinitionID == definitionID {
				n++
			}
		}
	}
	return n, nil
}

// DeleteTokensByDefinition removes every token of a definition's instances.
func (m *Store) DeleteTokensByDefinition(_ context.Context, definitionID id.DefinitionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, toks := range m.tokens {
		kept := toks[:0]
		for _, t := range toks {
			if t.DefinitionID != definitionID {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(m.tokens, key)
		} else {
			m.tokens[key] = kept
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Lock Store
// ──────────────────────────────────────────────────

// AcquireLock attempts to take the definition's lock for holder.
func (m *Store) AcquireLock(_ context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := definitionID.String()
	now := time.Now().UTC()
	e, ok := m.locks[key]
	if ok && e.expires.After(now) && e.holder != holder {
		return false, nil
	}
	m.locks[key] = &lockEntry{holder: holder, expires: now.Add(ttl)}
	return true, nil
}

// RenewLock extends the lock's expiry if holder still holds it.
func (m *Store) RenewLock(_ context.Context, definitionID id.DefinitionID, holder id.LauncherID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := definitionID.String()
	now := time.Now().UTC()
	e, ok := m.locks[key]
	if !ok || e.holder != holder || !e.expires.After(now) {
		return false, nil
	}
	e.expires = now.Add(ttl)
	return true, nil
}

// ReleaseLock frees the lock if holder holds it.
func (m *Store) ReleaseLock(_ context.Context, definitionID id.DefinitionID, holder id.LauncherID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := definitionID.String()
	if e, ok := m.locks[key]; ok && e.holder == holder {
		delete(m.locks, key)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneDefinition(d *definition.Definition) *definition.Definition {
	cp := *d
	if d.Tags != nil {
		cp.Tags = append([]string(nil), d.Tags...)
	}
	return &cp
}

func cloneInstance(inst *instance.Instance) *instance.Instance {
	cp := *inst
	if inst.FinishedAt != nil {
		t := *inst.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
