// Package admission implements the multi-instance admission policy and the
// destructive-deletion guard for job definitions.
//
// BlockingStatuses is the fixed mapping from a definition's prevent-multi
// mode to the token statuses that block a concurrent launch. Gate applies it
// to a snapshot of live token statuses; Guard refuses to destroy a
// definition while any of its instances still carries a token of any status.
//
// Both decisions are pure functions of the snapshot passed in — no hidden
// state, no writes, no locking. Callers that need the check and the
// subsequent instance creation to be mutually exclusive serialize them one
// layer up (see package launch).
package admission
