package token

import (
	"fmt"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/id"
)

// Status is the closed set of states a running job instance may report.
type Status string

const (
	// StatusWorking means the instance is currently executing.
	StatusWorking Status = "working"
	// StatusFailure means the instance failed in a recoverable way.
	StatusFailure Status = "failure"
	// StatusCritical means the instance failed and needs operator attention.
	StatusCritical Status = "critical"
	// StatusFinished means the instance completed successfully. Finished is
	// terminal and outside every blocking set.
	StatusFinished Status = "finished"
)

// Statuses lists every defined status in code order.
var Statuses = []Status{StatusWorking, StatusFailure, StatusCritical, StatusFinished}

// Integer codes for the persisted schema contract. These values are stable
// across versions.
const (
	codeWorking  = 1
	codeFailure  = 2
	codeCritical = 3
	codeFinished = 4
)

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWorking, StatusFailure, StatusCritical, StatusFinished:
		return true
	default:
		return false
	}
}

// Code returns the stable integer code for s.
// It panics on a status outside the defined set (programming error).
func (s Status) Code() int {
	switch s {
	case StatusWorking:
		return codeWorking
	case StatusFailure:
		return codeFailure
	case StatusCritical:
		return codeCritical
	case StatusFinished:
		return codeFinished
	default:
		panic(fmt.Sprintf("token: unknown status %q", string(s)))
	}
}

// StatusFromCode maps a stable integer code back to a Status.
func StatusFromCode(code int) (Status, error) {
	switch code {
	case codeWorking:
		return StatusWorking, nil
	case codeFailure:
		return StatusFailure, nil
	case codeCritical:
		return StatusCritical, nil
	case codeFinished:
		return StatusFinished, nil
	default:
		return "", fmt.Errorf("token: unknown status code %d", code)
	}
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// ──────────────────────────────────────────────────
// StatusSet
// ──────────────────────────────────────────────────

// StatusSet is a set of token statuses. The zero value is the empty set.
type StatusSet map[Status]struct{}

// NewStatusSet builds a StatusSet from the given statuses.
func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether the set contains s.
func (set StatusSet) Has(s Status) bool {
	_, ok := set[s]
	return ok
}

// Empty reports whether the set contains no statuses.
func (set StatusSet) Empty() bool { return len(set) == 0 }

// ContainsAny reports whether any of the given statuses is in the set.
func (set StatusSet) ContainsAny(statuses []Status) bool {
	for _, s := range statuses {
		if set.Has(s) {
			return true
		}
	}
	return false
}

// Slice returns the set's members in code order, for deterministic output.
func (set StatusSet) Slice() []Status {
	out := make([]Status, 0, len(set))
	for _, s := range Statuses {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Token
// ──────────────────────────────────────────────────

// Token is one status report emitted by a job instance. Tokens are
// append-only: once emitted they are never mutated, and they are deleted
// only by the engine's destroy path after the lifecycle guard allows it.
type Token struct {
	kuroko2.Entity

	ID         id.TokenID    `json:"id"`
	InstanceID id.InstanceID `json:"instance_id"`

	// DefinitionID is denormalized from the owning instance so that the
	// admission snapshot reads need no join.
	DefinitionID id.DefinitionID `json:"definition_id"`

	Status Status `json:"status"`

	// Seq is the insertion order of this token within its instance.
	// It is not required to be strictly time-ordered.
	Seq int `json:"seq"`

	EmittedAt time.Time `json:"emitted_at"`
}
