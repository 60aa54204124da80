package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/middleware"
)

func newTestDefinition() *definition.Definition {
	return &definition.Definition{
		ID:           id.NewDefinitionID(),
		Name:         "nightly-batch",
		PreventMulti: definition.PreventMultiWorkingOrError,
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *definition.Definition, next middleware.Handler) (bool, error) {
		order = append(order, "mw1-before")
		admitted, err := next(ctx)
		order = append(order, "mw1-after")
		return admitted, err
	}

	mw2 := func(ctx context.Context, _ *definition.Definition, next middleware.Handler) (bool, error) {
		order = append(order, "mw2-before")
		admitted, err := next(ctx)
		order = append(order, "mw2-after")
		return admitted, err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) (bool, error) {
		order = append(order, "handler")
		return true, nil
	}

	admitted, err := chain(context.Background(), newTestDefinition(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !admitted {
		t.Fatal("expected admitted decision to pass through")
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) (bool, error) {
		called = true
		return false, nil
	}

	admitted, err := chain(context.Background(), newTestDefinition(), handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if admitted {
		t.Fatal("denial should pass through an empty chain")
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *definition.Definition, next middleware.Handler) (bool, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("snapshot read failed")

	_, err := chain(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
		return false, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestLogging_PassesDecisionThrough(t *testing.T) {
	m := middleware.Logging(slog.Default())

	for _, decision := range []bool{true, false} {
		admitted, err := m(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
			return decision, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if admitted != decision {
			t.Errorf("decision %v changed to %v", decision, admitted)
		}
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	m := middleware.Recover(slog.Default())

	admitted, err := m(context.Background(), newTestDefinition(), func(_ context.Context) (bool, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if admitted {
		t.Error("a panicking decision must not admit")
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	m := middleware.Timeout(time.Minute)

	_, err := m(context.Background(), newTestDefinition(), func(ctx context.Context) (bool, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the handler context")
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	m := middleware.Timeout(0)

	_, err := m(context.Background(), newTestDefinition(), func(ctx context.Context) (bool, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout must not set a deadline")
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
