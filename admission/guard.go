package admission

import (
	"context"
	"fmt"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// Guard answers the lifecycle question for a definition: may it be destroyed
// now? Destruction is refused while any instance owned by the definition has
// at least one token, regardless of status and regardless of the
// prevent-multi mode — deliberately coarser than the Gate, so that the
// execution history of active or recently active runs is never discarded by
// a destroy. Tokens must be cleared by an external process before deletion.
type Guard struct {
	tokens    token.Store
	instances instance.Store
}

// NewGuard creates a Guard reading snapshots from the given stores.
func NewGuard(tokens token.Store, instances instance.Store) *Guard {
	return &Guard{tokens: tokens, instances: instances}
}

// MayDestroy reports whether the definition may be destroyed. When it denies,
// reason carries a display-ready explanation for the caller to attach to the
// failed destroy attempt.
func (g *Guard) MayDestroy(ctx context.Context, def *definition.Definition) (ok bool, reason string, err error) {
	tokens, err := g.tokens.CountTokensByDefinition(ctx, def.ID)
	if err != nil {
		return false, "", fmt.Errorf("admission: count tokens: %w", err)
	}
	if tokens == 0 {
		return true, "", nil
	}

	instances, err := g.instances.CountInstancesByDefinition(ctx, def.ID)
	if err != nil {
		return false, "", fmt.Errorf("admission: count instances: %w", err)
	}

	return false, fmt.Sprintf(
		"definition %q still has %d token(s) across %d instance(s); clear them before deleting",
		def.Name, tokens, instances,
	), nil
}
