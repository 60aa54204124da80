package instance

import (
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
)

// Instance is one execution attempt of a job definition. It belongs to
// exactly one definition and is cascade-deleted with it once the lifecycle
// guard permits destruction.
type Instance struct {
	kuroko2.Entity

	ID           id.InstanceID   `json:"id"`
	DefinitionID id.DefinitionID `json:"definition_id"`

	// LaunchedBy identifies the launcher process that admitted this instance.
	LaunchedBy id.LauncherID `json:"launched_by,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the instance has been marked finished.
func (i *Instance) Finished() bool { return i.FinishedAt != nil }
