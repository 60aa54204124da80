// Package definition defines job definitions — named, schedulable units of
// work — and their persistence contract. A definition's prevent-multi mode
// configures which token statuses of its live instances block a concurrent
// launch; package admission interprets the mode.
package definition
