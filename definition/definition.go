package definition

import (
	"strings"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
)

// PreventMulti controls which token statuses of a definition's live instances
// block a new instance from launching. The integer codes are part of the
// persisted schema contract and must remain stable across versions.
type PreventMulti int

const (
	// PreventMultiNone never blocks concurrent launches.
	PreventMultiNone PreventMulti = 0
	// PreventMultiWorkingOrError blocks while any instance reports working,
	// failure, or critical.
	PreventMultiWorkingOrError PreventMulti = 1
	// PreventMultiWorking blocks only while an instance reports working.
	PreventMultiWorking PreventMulti = 2
	// PreventMultiError blocks while any instance reports failure or critical.
	PreventMultiError PreventMulti = 3
)

// Modes lists every defined prevent-multi mode in code order.
var Modes = []PreventMulti{
	PreventMultiNone,
	PreventMultiWorkingOrError,
	PreventMultiWorking,
	PreventMultiError,
}

// Valid reports whether m is one of the four defined modes.
func (m PreventMulti) Valid() bool {
	return m >= PreventMultiNone && m <= PreventMultiError
}

// String implements fmt.Stringer.
func (m PreventMulti) String() string {
	switch m {
	case PreventMultiNone:
		return "none"
	case PreventMultiWorkingOrError:
		return "working_or_error"
	case PreventMultiWorking:
		return "working"
	case PreventMultiError:
		return "error"
	default:
		return "invalid"
	}
}

// PreventMultiFromCode maps a persisted integer code to a PreventMulti mode.
// Unknown codes surface as ErrInvalidPreventMulti; they indicate a bug or
// data corruption upstream and are never silently coerced.
func PreventMultiFromCode(code int) (PreventMulti, error) {
	m := PreventMulti(code)
	if !m.Valid() {
		return 0, kuroko2.ErrInvalidPreventMulti
	}
	return m, nil
}

// Definition is a named, schedulable unit of work. Launching it produces job
// instances; each instance emits status tokens as it runs.
//
// A definition is the aggregate root for its instances: instances and their
// tokens are destroyed with the definition, except that the lifecycle guard
// forbids destruction while any instance still carries a token.
type Definition struct {
	kuroko2.Entity

	ID   id.DefinitionID `json:"id"`
	Name string          `json:"name"`

	// Description is free text shown in management surfaces. It participates
	// in store text search together with Name.
	Description string `json:"description,omitempty"`

	// Script is the workflow body executed by the launch subsystem. It is
	// opaque to this library; parsing and validation happen in an external
	// collaborator before the definition reaches the store.
	Script string `json:"script,omitempty"`

	// Tags classify the definition for list filtering. They are stored as
	// given; normalization is the caller's concern.
	Tags []string `json:"tags,omitempty"`

	// Suspended definitions are never admitted for launch.
	Suspended bool `json:"suspended"`

	PreventMulti PreventMulti `json:"prevent_multi"`

	// Version is the optimistic-lock counter. UpdateDefinition compares it
	// against the stored value and bumps it on success.
	Version int64 `json:"version"`
}

// Validate checks the boundary invariants for a definition about to be
// persisted: a non-blank name and a recognized prevent-multi mode.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrBlankName
	}
	if !d.PreventMulti.Valid() {
		return kuroko2.ErrInvalidPreventMulti
	}
	return nil
}

// HasTag reports whether the definition carries the given tag.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
