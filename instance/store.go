package instance

import (
	"context"
	"time"

	"github.com/makimoto/kuroko2/id"
)

// Store defines the persistence contract for job instances.
type Store interface {
	// CreateInstance persists a new instance.
	CreateInstance(ctx context.Context, inst *Instance) error

	// GetInstance retrieves an instance by ID.
	GetInstance(ctx context.Context, instanceID id.InstanceID) (*Instance, error)

	// ListInstancesByDefinition returns all instances owned by the
	// definition, oldest first.
	ListInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) ([]*Instance, error)

	// CountInstancesByDefinition returns the number of instances owned by
	// the definition.
	CountInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) (int64, error)

	// FinishInstance stamps the instance's FinishedAt.
	FinishInstance(ctx context.Context, instanceID id.InstanceID, finishedAt time.Time) error

	// DeleteInstancesByDefinition removes every instance owned by the
	// definition. Called only by the engine's destroy path, after the
	// lifecycle guard has allowed destruction.
	DeleteInstancesByDefinition(ctx context.Context, definitionID id.DefinitionID) error
}
