package admission_test

import (
	"context"
	"testing"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/admission"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/store/memory"
	"github.com/makimoto/kuroko2/token"
)

// allStatuses is the universe for the subset property test.
var allStatuses = []token.Status{
	token.StatusWorking,
	token.StatusFailure,
	token.StatusCritical,
	token.StatusFinished,
}

// subsetsOf enumerates every subset of statuses via a bitmask.
func subsetsOf(statuses []token.Status) []token.StatusSet {
	n := 1 << len(statuses)
	subsets := make([]token.StatusSet, 0, n)
	for mask := 0; mask < n; mask++ {
		set := token.NewStatusSet()
		for i, s := range statuses {
			if mask&(1<<i) != 0 {
				set[s] = struct{}{}
			}
		}
		subsets = append(subsets, set)
	}
	return subsets
}

// ──────────────────────────────────────────────────
// Policy
// ──────────────────────────────────────────────────

func TestBlockingStatusesTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode definition.PreventMulti
		want []token.Status
	}{
		{definition.PreventMultiNone, nil},
		{definition.PreventMultiWorkingOrError, []token.Status{token.StatusWorking, token.StatusFailure, token.StatusCritical}},
		{definition.PreventMultiWorking, []token.Status{token.StatusWorking}},
		{definition.PreventMultiError, []token.Status{token.StatusFailure, token.StatusCritical}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			got := admission.BlockingStatuses(tt.mode)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d blocking statuses, got %d", len(tt.want), len(got))
			}
			for _, s := range tt.want {
				if !got.Has(s) {
					t.Errorf("mode %s should block %s", tt.mode, s)
				}
			}
			if got.Has(token.StatusFinished) {
				t.Errorf("mode %s must never block finished", tt.mode)
			}
		})
	}
}

func TestBlockingStatusesMonotonic(t *testing.T) {
	t.Parallel()

	all := admission.BlockingStatuses(definition.PreventMultiWorkingOrError)
	for _, narrower := range []definition.PreventMulti{
		definition.PreventMultiWorking,
		definition.PreventMultiError,
	} {
		for _, s := range admission.BlockingStatuses(narrower).Slice() {
			if !all.Has(s) {
				t.Errorf("%s blocks %s but working_or_error does not", narrower, s)
			}
		}
	}
}

func TestBlockingStatusesPanicsOnUnknownMode(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for an out-of-range mode")
		}
	}()
	admission.BlockingStatuses(definition.PreventMulti(7))
}

// TestAllowedProperty checks, across the cross product of the 4 modes and all
// 16 subsets of the status universe, that admission is granted exactly when
// the blocking set and the live set are disjoint.
func TestAllowedProperty(t *testing.T) {
	t.Parallel()

	for _, mode := range definition.Modes {
		blocking := admission.BlockingStatuses(mode)
		for _, live := range subsetsOf(allStatuses) {
			intersects := false
			for s := range live {
				if blocking.Has(s) {
					intersects = true
					break
				}
			}

			got := admission.Allowed(mode, live)
			if got != !intersects {
				t.Errorf("mode %s, live %v: Allowed = %v, want %v",
					mode, live.Slice(), got, !intersects)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Gate and Guard over a store snapshot
// ──────────────────────────────────────────────────

// fixture creates a definition with one instance per status list entry,
// each carrying exactly one token of that status.
func fixture(t *testing.T, s *memory.Store, mode definition.PreventMulti, statuses ...token.Status) *definition.Definition {
	t.Helper()
	ctx := context.Background()

	def := &definition.Definition{
		Entity:       kuroko2.NewEntity(),
		ID:           id.NewDefinitionID(),
		Name:         "fixture-" + mode.String(),
		PreventMulti: mode,
	}
	if err := s.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	for _, st := range statuses {
		inst := &instance.Instance{
			Entity:       kuroko2.NewEntity(),
			ID:           id.NewInstanceID(),
			DefinitionID: def.ID,
			StartedAt:    time.Now().UTC(),
		}
		if err := s.CreateInstance(ctx, inst); err != nil {
			t.Fatalf("create instance: %v", err)
		}
		tok := &token.Token{
			Entity:       kuroko2.NewEntity(),
			ID:           id.NewTokenID(),
			InstanceID:   inst.ID,
			DefinitionID: def.ID,
			Status:       st,
			Seq:          1,
			EmittedAt:    time.Now().UTC(),
		}
		if err := s.AppendToken(ctx, tok); err != nil {
			t.Fatalf("append token: %v", err)
		}
	}
	return def
}

func TestGateScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     definition.PreventMulti
		statuses []token.Status
		want     bool
	}{
		{"working token blocks working_or_error", definition.PreventMultiWorkingOrError, []token.Status{token.StatusWorking}, false},
		{"working token passes error mode", definition.PreventMultiError, []token.Status{token.StatusWorking}, true},
		{"critical tokens pass none mode", definition.PreventMultiNone, []token.Status{token.StatusCritical, token.StatusCritical}, true},
		{"zero instances always admitted", definition.PreventMultiWorkingOrError, nil, true},
		{"finished token passes working mode", definition.PreventMultiWorking, []token.Status{token.StatusFinished}, true},
		{"failure token blocks error mode", definition.PreventMultiError, []token.Status{token.StatusFailure}, false},
		{"critical token blocks working_or_error", definition.PreventMultiWorkingOrError, []token.Status{token.StatusCritical}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := memory.New()
			def := fixture(t, s, tt.mode, tt.statuses...)

			gate := admission.NewGate(s)
			got, err := gate.MayStart(context.Background(), def)
			if err != nil {
				t.Fatalf("MayStart: %v", err)
			}
			if got != tt.want {
				t.Errorf("MayStart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGateRejectsSuspended(t *testing.T) {
	t.Parallel()

	s := memory.New()
	def := fixture(t, s, definition.PreventMultiNone)
	def.Suspended = true

	gate := admission.NewGate(s)
	got, err := gate.MayStart(context.Background(), def)
	if err != nil {
		t.Fatalf("MayStart: %v", err)
	}
	if got {
		t.Error("suspended definition must not be admitted")
	}
}

func TestGateIdempotent(t *testing.T) {
	t.Parallel()

	s := memory.New()
	def := fixture(t, s, definition.PreventMultiWorking, token.StatusWorking)
	gate := admission.NewGate(s)

	first, err := gate.MayStart(context.Background(), def)
	if err != nil {
		t.Fatalf("MayStart: %v", err)
	}
	second, err := gate.MayStart(context.Background(), def)
	if err != nil {
		t.Fatalf("MayStart: %v", err)
	}
	if first != second {
		t.Errorf("gate not idempotent over an unchanged snapshot: %v then %v", first, second)
	}
}

func TestGuardDeniesWhileTokensExist(t *testing.T) {
	t.Parallel()

	// The guard is status-agnostic and ignores the prevent-multi mode:
	// even mode none with only finished tokens blocks deletion.
	tests := []struct {
		name     string
		mode     definition.PreventMulti
		statuses []token.Status
		want     bool
	}{
		{"no instances", definition.PreventMultiWorkingOrError, nil, true},
		{"critical tokens under none mode", definition.PreventMultiNone, []token.Status{token.StatusCritical}, false},
		{"finished token still blocks", definition.PreventMultiWorking, []token.Status{token.StatusFinished}, false},
		{"working token blocks", definition.PreventMultiNone, []token.Status{token.StatusWorking}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := memory.New()
			def := fixture(t, s, tt.mode, tt.statuses...)

			guard := admission.NewGuard(s, s)
			ok, reason, err := guard.MayDestroy(context.Background(), def)
			if err != nil {
				t.Fatalf("MayDestroy: %v", err)
			}
			if ok != tt.want {
				t.Errorf("MayDestroy = %v, want %v", ok, tt.want)
			}
			if !ok && reason == "" {
				t.Error("denial must carry a user-facing reason")
			}
			if ok && reason != "" {
				t.Errorf("approval must not carry a reason, got %q", reason)
			}
		})
	}
}

func TestGuardStricterThanGate(t *testing.T) {
	t.Parallel()

	// Scenario 5: one finished token, mode working — launch admitted,
	// destroy denied.
	s := memory.New()
	def := fixture(t, s, definition.PreventMultiWorking, token.StatusFinished)

	gate := admission.NewGate(s)
	admitted, err := gate.MayStart(context.Background(), def)
	if err != nil {
		t.Fatalf("MayStart: %v", err)
	}
	if !admitted {
		t.Error("finished token must not block a launch under working mode")
	}

	guard := admission.NewGuard(s, s)
	ok, _, err := guard.MayDestroy(context.Background(), def)
	if err != nil {
		t.Fatalf("MayDestroy: %v", err)
	}
	if ok {
		t.Error("finished token must still block destruction")
	}
}

func TestGuardIdempotent(t *testing.T) {
	t.Parallel()

	s := memory.New()
	def := fixture(t, s, definition.PreventMultiNone, token.StatusFailure)
	guard := admission.NewGuard(s, s)

	first, _, err := guard.MayDestroy(context.Background(), def)
	if err != nil {
		t.Fatalf("MayDestroy: %v", err)
	}
	second, _, err := guard.MayDestroy(context.Background(), def)
	if err != nil {
		t.Fatalf("MayDestroy: %v", err)
	}
	if first != second {
		t.Errorf("guard not idempotent over an unchanged snapshot: %v then %v", first, second)
	}
}
