package launch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/admission"
	"github.com/makimoto/kuroko2/backoff"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/launch"
	"github.com/makimoto/kuroko2/store/memory"
	"github.com/makimoto/kuroko2/token"
)

func setup(mode definition.PreventMulti, opts ...launch.Option) (*memory.Store, *launch.Launcher, *definition.Definition) {
	s := memory.New()
	gate := admission.NewGate(s)
	la := launch.New(gate, s, s, opts...)
	def := &definition.Definition{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewDefinitionID(),
		Name:         "hourly-sync",
		PreventMulti: mode,
	}
	return s, la, def
}

func TestTryLaunch_Admitted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, la, def := setup(definition.PreventMultiWorking)

	inst, admitted, err := la.TryLaunch(ctx, def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !admitted {
		t.Fatal("first launch must be admitted")
	}
	if inst.DefinitionID != def.ID {
		t.Errorf("instance owned by %v, want %v", inst.DefinitionID, def.ID)
	}
	if inst.LaunchedBy != la.ID() {
		t.Errorf("instance launched by %v, want %v", inst.LaunchedBy, la.ID())
	}

	stored, err := s.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("instance not persisted: %v", err)
	}
	if stored.Finished() {
		t.Error("fresh instance reported finished")
	}

	toks, err := s.ListTokensByInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(toks) != 1 || toks[0].Status != token.StatusWorking {
		t.Fatalf("expected one initial WORKING token, got %v", toks)
	}
}

func TestTryLaunch_InitialTokenExcludesSecondLaunch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, la, def := setup(definition.PreventMultiWorking)

	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
		t.Fatalf("first launch: admitted=%v err=%v", admitted, err)
	}
	inst, admitted, err := la.TryLaunch(ctx, def)
	if err != nil {
		t.Fatalf("second launch: %v", err)
	}
	if admitted || inst != nil {
		t.Fatal("second launch admitted while the first still works")
	}
}

func TestTryLaunch_NoneModeAdmitsRepeatedly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, la, def := setup(definition.PreventMultiNone)

	for i := 0; i < 3; i++ {
		if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
			t.Fatalf("launch %d: admitted=%v err=%v", i, admitted, err)
		}
	}
	if n, _ := s.CountInstancesByDefinition(ctx, def.ID); n != 3 {
		t.Errorf("instance count = %d, want 3", n)
	}
}

func TestTryLaunch_WithoutInitialToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, la, def := setup(definition.PreventMultiWorking, launch.WithoutInitialToken())

	inst, admitted, err := la.TryLaunch(ctx, def)
	if err != nil || !admitted {
		t.Fatalf("launch: admitted=%v err=%v", admitted, err)
	}
	toks, _ := s.ListTokensByInstance(ctx, inst.ID)
	if len(toks) != 0 {
		t.Fatalf("expected no tokens, got %d", len(toks))
	}
}

func TestTryLaunch_ConcurrentExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, la, def := setup(definition.PreventMultiWorking)

	var admittedCount atomic.Int64
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, admitted, err := la.TryLaunch(ctx, def)
			if admitted {
				admittedCount.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent launch: %v", err)
	}
	if got := admittedCount.Load(); got != 1 {
		t.Fatalf("admitted %d concurrent launches, want exactly 1", got)
	}
}

func TestTryLaunch_DistributedLockDeniesContender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	gate := admission.NewGate(s)
	def := &definition.Definition{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewDefinitionID(),
		Name:         "locked",
		PreventMulti: definition.PreventMultiNone,
	}

	la := launch.New(gate, s, s, launch.WithLockStore(s))

	// Another launcher already holds the definition's lock.
	other := id.NewLauncherID()
	if ok, err := s.AcquireLock(ctx, def.ID, other, time.Minute); err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	inst, admitted, err := la.TryLaunch(ctx, def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if admitted || inst != nil {
		t.Fatal("launch proceeded while the lock was held elsewhere")
	}

	// After the other holder releases, the launch goes through.
	if err := s.ReleaseLock(ctx, def.ID, other); err != nil {
		t.Fatal(err)
	}
	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
		t.Fatalf("launch after release: admitted=%v err=%v", admitted, err)
	}
}

func TestTryLaunch_RateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, la, def := setup(definition.PreventMultiNone, launch.WithRateLimit(rate.Every(time.Hour), 2))

	for i := 0; i < 2; i++ {
		if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
			t.Fatalf("launch %d within burst: admitted=%v err=%v", i, admitted, err)
		}
	}
	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || admitted {
		t.Fatalf("launch beyond burst: admitted=%v err=%v", admitted, err)
	}
	if n, _ := s.CountInstancesByDefinition(ctx, def.ID); n != 2 {
		t.Errorf("instance count = %d, want 2", n)
	}
}

func TestAwaitLaunch_AdmitsAfterTokensClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, la, def := setup(definition.PreventMultiWorking)

	// Occupy the definition, then free it from another goroutine.
	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
		t.Fatalf("occupy: admitted=%v err=%v", admitted, err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.DeleteTokensByDefinition(context.Background(), def.ID)
	}()

	w := launch.NewWaiter(la, launch.WithStrategy(backoff.NewConstant(5*time.Millisecond)))
	inst, err := w.AwaitLaunch(ctx, def)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if inst == nil {
		t.Fatal("await returned no instance")
	}
}

func TestAwaitLaunch_AttemptBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, la, def := setup(definition.PreventMultiWorking)

	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
		t.Fatalf("occupy: admitted=%v err=%v", admitted, err)
	}

	w := launch.NewWaiter(la,
		launch.WithStrategy(backoff.NewConstant(time.Millisecond)),
		launch.WithMaxAttempts(3),
	)
	_, err := w.AwaitLaunch(ctx, def)
	if !errors.Is(err, launch.ErrAdmissionTimeout) {
		t.Fatalf("want ErrAdmissionTimeout, got %v", err)
	}
}

func TestAwaitLaunch_ContextCancel(t *testing.T) {
	t.Parallel()
	_, la, def := setup(definition.PreventMultiWorking)

	ctx := context.Background()
	if _, admitted, err := la.TryLaunch(ctx, def); err != nil || !admitted {
		t.Fatalf("occupy: admitted=%v err=%v", admitted, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	w := launch.NewWaiter(la, launch.WithStrategy(backoff.NewConstant(10*time.Millisecond)))
	_, err := w.AwaitLaunch(ctx, def)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context.DeadlineExceeded, got %v", err)
	}
}
