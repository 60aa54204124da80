// Package token defines the status reports emitted by running job instances
// and the persistence contract for reading them as admission snapshots.
//
// A token's status is one of four closed values: working, failure, critical,
// or finished. The first three can block concurrent launches depending on the
// owning definition's prevent-multi mode; finished never blocks.
package token
