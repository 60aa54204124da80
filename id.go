package kuroko2

import "github.com/makimoto/kuroko2/id"

// ID is the primary identifier type for all kuroko2 entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
