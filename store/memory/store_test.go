package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/store/memory"
	"github.com/makimoto/kuroko2/token"
)

func newDefinition(name string, mode definition.PreventMulti, tags ...string) *definition.Definition {
	d := &definition.Definition{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewDefinitionID(),
		Name:         name,
		PreventMulti: mode,
		Tags:         tags,
	}
	return d
}

func newInstance(defID id.DefinitionID) *instance.Instance {
	return &instance.Instance{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewInstanceID(),
		DefinitionID: defID,
		StartedAt:    time.Now().UTC(),
	}
}

func newToken(inst *instance.Instance, status token.Status, seq int) *token.Token {
	return &token.Token{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewTokenID(),
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		Status:       status,
		Seq:          seq,
		EmittedAt:    time.Now().UTC(),
	}
}

// ──────────────────────────────────────────────────
// Definition store
// ──────────────────────────────────────────────────

func TestDefinitionCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	d := newDefinition("nightly-batch", definition.PreventMultiWorking)
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateDefinition(ctx, d); !errors.Is(err, kuroko2.ErrDefinitionExists) {
		t.Fatalf("duplicate create: want ErrDefinitionExists, got %v", err)
	}

	got, err := s.GetDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "nightly-batch" || got.PreventMulti != definition.PreventMultiWorking {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if err := s.DeleteDefinition(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDefinition(ctx, d.ID); !errors.Is(err, kuroko2.ErrDefinitionNotFound) {
		t.Fatalf("get after delete: want ErrDefinitionNotFound, got %v", err)
	}
	if err := s.DeleteDefinition(ctx, d.ID); !errors.Is(err, kuroko2.ErrDefinitionNotFound) {
		t.Fatalf("double delete: want ErrDefinitionNotFound, got %v", err)
	}
}

func TestDefinitionGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	d := newDefinition("copy-check", definition.PreventMultiNone, "etl")
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := s.GetDefinition(ctx, d.ID)
	got.Name = "mutated"
	got.Tags[0] = "mutated"

	again, _ := s.GetDefinition(ctx, d.ID)
	if again.Name != "copy-check" || again.Tags[0] != "etl" {
		t.Error("stored definition was mutated through a returned copy")
	}
}

func TestUpdateDefinitionVersioning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	d := newDefinition("versioned", definition.PreventMultiNone)
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	d.Description = "first update"
	if err := s.UpdateDefinition(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.Version != 1 {
		t.Errorf("version after update = %d, want 1", d.Version)
	}

	stale := *d
	stale.Version = 0
	if err := s.UpdateDefinition(ctx, &stale); !errors.Is(err, kuroko2.ErrVersionConflict) {
		t.Fatalf("stale update: want ErrVersionConflict, got %v", err)
	}

	missing := newDefinition("missing", definition.PreventMultiNone)
	if err := s.UpdateDefinition(ctx, missing); !errors.Is(err, kuroko2.ErrDefinitionNotFound) {
		t.Fatalf("update missing: want ErrDefinitionNotFound, got %v", err)
	}
}

func TestListDefinitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	names := []string{"alpha-sync", "beta-report", "gamma-cleanup"}
	for _, n := range names {
		tags := []string{"batch"}
		if n == "beta-report" {
			tags = append(tags, "reporting")
		}
		if err := s.CreateDefinition(ctx, newDefinition(n, definition.PreventMultiNone, tags...)); err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
	}

	all, err := s.ListDefinitions(ctx, definition.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list: got %d, want 3", len(all))
	}
	// IDs are K-sortable, so list order is creation order.
	for i := 1; i < len(all); i++ {
		if all[i-1].ID.String() >= all[i].ID.String() {
			t.Error("list not ordered by ID")
		}
	}

	page, err := s.ListDefinitions(ctx, definition.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(page) != 1 || page[0].ID != all[1].ID {
		t.Errorf("pagination returned wrong slice")
	}

	found, err := s.ListDefinitions(ctx, definition.ListOpts{Search: "REPORT"})
	if err != nil {
		t.Fatalf("search list: %v", err)
	}
	if len(found) != 1 || found[0].Name != "beta-report" {
		t.Errorf("search: got %d results", len(found))
	}

	tagged, err := s.ListDefinitions(ctx, definition.ListOpts{Tags: []string{"batch", "reporting"}})
	if err != nil {
		t.Fatalf("tag list: %v", err)
	}
	if len(tagged) != 1 || tagged[0].Name != "beta-report" {
		t.Errorf("tag filter: got %d results", len(tagged))
	}

	n, err := s.CountDefinitions(ctx, definition.CountOpts{Tags: []string{"batch"}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

// ──────────────────────────────────────────────────
// Instance store
// ──────────────────────────────────────────────────

func TestInstanceLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	d := newDefinition("with-instances", definition.PreventMultiNone)
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	first := newInstance(d.ID)
	second := newInstance(d.ID)
	for _, inst := range []*instance.Instance{first, second} {
		if err := s.CreateInstance(ctx, inst); err != nil {
			t.Fatalf("create instance: %v", err)
		}
	}

	got, err := s.GetInstance(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Finished() {
		t.Error("fresh instance reported finished")
	}

	finishedAt := time.Now().UTC()
	if err := s.FinishInstance(ctx, first.ID, finishedAt); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, _ = s.GetInstance(ctx, first.ID)
	if !got.Finished() || !got.FinishedAt.Equal(finishedAt) {
		t.Errorf("finish not recorded: %+v", got)
	}

	if err := s.FinishInstance(ctx, id.NewInstanceID(), finishedAt); !errors.Is(err, kuroko2.ErrInstanceNotFound) {
		t.Fatalf("finish missing: want ErrInstanceNotFound, got %v", err)
	}

	list, err := s.ListInstancesByDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list: got %d, want 2", len(list))
	}
	if n, _ := s.CountInstancesByDefinition(ctx, d.ID); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if err := s.DeleteInstancesByDefinition(ctx, d.ID); err != nil {
		t.Fatalf("delete by definition: %v", err)
	}
	if n, _ := s.CountInstancesByDefinition(ctx, d.ID); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

// ──────────────────────────────────────────────────
// Token store
// ──────────────────────────────────────────────────

func TestTokenAppendAndSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	d := newDefinition("tokened", definition.PreventMultiWorkingOrError)
	inst := newInstance(d.ID)
	other := newInstance(d.ID)
	if err := s.CreateDefinition(ctx, d); err != nil {
		t.Fatal(err)
	}
	for _, i := range []*instance.Instance{inst, other} {
		if err := s.CreateInstance(ctx, i); err != nil {
			t.Fatal(err)
		}
	}

	// Append out of seq order to verify ListTokensByInstance sorts.
	for _, tok := range []*token.Token{
		newToken(inst, token.StatusFailure, 1),
		newToken(inst, token.StatusWorking, 0),
		newToken(other, token.StatusWorking, 0),
	} {
		if err := s.AppendToken(ctx, tok); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	toks, err := s.ListTokensByInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list by instance: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("list by instance: got %d, want 2", len(toks))
	}
	if toks[0].Seq != 0 || toks[1].Seq != 1 {
		t.Errorf("tokens not in seq order: %d, %d", toks[0].Seq, toks[1].Seq)
	}

	all, err := s.ListTokensByDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("list by definition: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list by definition: got %d, want 3", len(all))
	}

	set, err := s.DistinctStatusesByDefinition(ctx, d.ID)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if !set.Has(token.StatusWorking) || !set.Has(token.StatusFailure) {
		t.Errorf("distinct set missing statuses: %v", set.Slice())
	}
	if set.Has(token.StatusFinished) {
		t.Error("distinct set contains status never appended")
	}

	if n, _ := s.CountTokensByDefinition(ctx, d.ID); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	if err := s.DeleteTokensByDefinition(ctx, d.ID); err != nil {
		t.Fatalf("delete by definition: %v", err)
	}
	if n, _ := s.CountTokensByDefinition(ctx, d.ID); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
	set, _ = s.DistinctStatusesByDefinition(ctx, d.ID)
	if !set.Empty() {
		t.Error("distinct set not empty after delete")
	}
}

func TestTokenSnapshotEmptyDefinition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	set, err := s.DistinctStatusesByDefinition(ctx, id.NewDefinitionID())
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if !set.Empty() {
		t.Error("expected empty snapshot for unknown definition")
	}
}

// ──────────────────────────────────────────────────
// Lock store
// ──────────────────────────────────────────────────

func TestLockAcquireReleaseContention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	defID := id.NewDefinitionID()
	holderA := id.NewLauncherID()
	holderB := id.NewLauncherID()

	ok, err := s.AcquireLock(ctx, defID, holderA, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// Re-entrant for the same holder.
	ok, _ = s.AcquireLock(ctx, defID, holderA, time.Minute)
	if !ok {
		t.Error("same holder could not re-acquire")
	}

	ok, _ = s.AcquireLock(ctx, defID, holderB, time.Minute)
	if ok {
		t.Error("second holder acquired a held lock")
	}

	// Releasing someone else's lock is a no-op.
	if err := s.ReleaseLock(ctx, defID, holderB); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	ok, _ = s.AcquireLock(ctx, defID, holderB, time.Minute)
	if ok {
		t.Error("non-holder release freed the lock")
	}

	if err := s.ReleaseLock(ctx, defID, holderA); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = s.AcquireLock(ctx, defID, holderB, time.Minute)
	if !ok {
		t.Error("lock not claimable after release")
	}
}

func TestLockExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	defID := id.NewDefinitionID()
	holderA := id.NewLauncherID()
	holderB := id.NewLauncherID()

	if ok, _ := s.AcquireLock(ctx, defID, holderA, 10*time.Millisecond); !ok {
		t.Fatal("initial acquire failed")
	}
	time.Sleep(20 * time.Millisecond)

	ok, _ := s.AcquireLock(ctx, defID, holderB, time.Minute)
	if !ok {
		t.Error("expired lock not claimable")
	}

	// The original holder's renew must now fail.
	renewed, _ := s.RenewLock(ctx, defID, holderA, time.Minute)
	if renewed {
		t.Error("renew succeeded for a lost lock")
	}
	renewed, _ = s.RenewLock(ctx, defID, holderB, time.Minute)
	if !renewed {
		t.Error("renew failed for the current holder")
	}
}
