package definition

import (
	"context"
	"errors"

	"github.com/makimoto/kuroko2/id"
)

// ErrBlankName rejects definitions without a usable name at the boundary.
var ErrBlankName = errors.New("kuroko2: definition name must not be blank")

// ListOpts controls pagination and filtering for definition list queries.
type ListOpts struct {
	// Limit is the maximum number of definitions to return. Zero means no limit.
	Limit int
	// Offset is the number of definitions to skip.
	Offset int
	// Search filters by a case-insensitive substring of name or description.
	// Empty means no text filter.
	Search string
	// Tags filters to definitions carrying every listed tag. Empty means no
	// tag filter.
	Tags []string
}

// CountOpts controls filtering for definition count queries.
type CountOpts struct {
	// Search filters by a case-insensitive substring of name or description.
	Search string
	// Tags filters to definitions carrying every listed tag.
	Tags []string
}

// Store defines the persistence contract for job definitions.
type Store interface {
	// CreateDefinition persists a new definition.
	CreateDefinition(ctx context.Context, d *Definition) error

	// GetDefinition retrieves a definition by ID.
	GetDefinition(ctx context.Context, definitionID id.DefinitionID) (*Definition, error)

	// UpdateDefinition persists changes to an existing definition. The given
	// Version must match the stored one; on success the stored Version is
	// incremented. A mismatch returns ErrVersionConflict.
	UpdateDefinition(ctx context.Context, d *Definition) error

	// DeleteDefinition removes a definition by ID. Callers must consult the
	// lifecycle guard first; the store performs no token check of its own.
	DeleteDefinition(ctx context.Context, definitionID id.DefinitionID) error

	// ListDefinitions returns definitions ordered by ID (creation order,
	// since IDs are K-sortable), honoring pagination and filters.
	ListDefinitions(ctx context.Context, opts ListOpts) ([]*Definition, error)

	// CountDefinitions returns the number of definitions matching the filters.
	CountDefinitions(ctx context.Context, opts CountOpts) (int64, error)
}
