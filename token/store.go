package token

import (
	"context"
	"errors"

	"github.com/makimoto/kuroko2/id"
)

// ErrInvalidStatus rejects tokens whose status is outside the defined set at
// the boundary.
var ErrInvalidStatus = errors.New("kuroko2: invalid token status")

// Store defines the persistence contract for status tokens.
// Implementations must reflect the most recent data available at call time;
// the admission gate and lifecycle guard treat each read as a snapshot.
type Store interface {
	// AppendToken persists a new token. Seq is assigned by the caller.
	AppendToken(ctx context.Context, t *Token) error

	// ListTokensByInstance returns all tokens of one instance in Seq order.
	ListTokensByInstance(ctx context.Context, instanceID id.InstanceID) ([]*Token, error)

	// ListTokensByDefinition returns all tokens across all instances owned by
	// the definition, in emission order.
	ListTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*Token, error)

	// DistinctStatusesByDefinition returns the set of distinct statuses among
	// all tokens of the definition's instances.
	DistinctStatusesByDefinition(ctx context.Context, definitionID id.DefinitionID) (StatusSet, error)

	// CountTokensByDefinition returns the number of tokens across all
	// instances owned by the definition, regardless of status.
	CountTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error)

	// DeleteTokensByDefinition removes every token owned by the definition's
	// instances. Called only by the engine's destroy path, after the
	// lifecycle guard has allowed destruction.
	DeleteTokensByDefinition(ctx context.Context, definitionID id.DefinitionID) error
}
