package admission

import (
	"context"
	"fmt"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/token"
)

// Gate answers the admission question for a definition: may a new instance
// start now, given the live tokens of its other instances?
//
// The gate is a pure decision over a snapshot read. It takes no locks and
// performs no writes; two concurrent callers may both be admitted between a
// read and the instance-creation write. Package launch serializes the
// check-then-create sequence per definition for callers that need that
// guarantee.
type Gate struct {
	tokens token.Store
}

// NewGate creates a Gate reading snapshots from the given token store.
func NewGate(tokens token.Store) *Gate {
	return &Gate{tokens: tokens}
}

// MayStart reports whether a new instance of the definition may launch.
//
// A suspended definition is never admitted. Otherwise the decision is
// Allowed(mode, statuses) over the current snapshot: a definition with no
// instances or no tokens is always admitted, and mode none admits regardless
// of token state. A false return is a normal negative decision, not an error.
func (g *Gate) MayStart(ctx context.Context, def *definition.Definition) (bool, error) {
	if def.Suspended {
		return false, nil
	}

	live, err := g.tokens.DistinctStatusesByDefinition(ctx, def.ID)
	if err != nil {
		return false, fmt.Errorf("admission: read token snapshot: %w", err)
	}

	return Allowed(def.PreventMulti, live), nil
}
