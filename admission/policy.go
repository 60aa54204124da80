package admission

import (
	"fmt"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/token"
)

// BlockingStatuses maps a prevent-multi mode to the set of token statuses
// that block a new instance from launching.
//
//	none             → {}
//	working_or_error → {working, failure, critical}
//	working          → {working}
//	error            → {failure, critical}
//
// It is a total function over the four defined modes and panics on anything
// else: an unrecognized mode is a programming-contract violation, reported at
// the boundary where the mode was set (definition.Validate,
// definition.PreventMultiFromCode), never resolved here.
func BlockingStatuses(mode definition.PreventMulti) token.StatusSet {
	switch mode {
	case definition.PreventMultiNone:
		return token.NewStatusSet()
	case definition.PreventMultiWorkingOrError:
		return token.NewStatusSet(token.StatusWorking, token.StatusFailure, token.StatusCritical)
	case definition.PreventMultiWorking:
		return token.NewStatusSet(token.StatusWorking)
	case definition.PreventMultiError:
		return token.NewStatusSet(token.StatusFailure, token.StatusCritical)
	default:
		panic(fmt.Sprintf("admission: unknown prevent-multi mode %d", int(mode)))
	}
}

// Allowed is the pure admission decision over a snapshot: a new instance may
// launch iff none of the live statuses is in the mode's blocking set.
func Allowed(mode definition.PreventMulti, live token.StatusSet) bool {
	blocking := BlockingStatuses(mode)
	for s := range live {
		if blocking.Has(s) {
			return false
		}
	}
	return true
}
