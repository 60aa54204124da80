// Package instance defines job instances — single execution attempts of a
// job definition — and their persistence contract. Instance creation is
// gated by package admission; see package launch for the serialized
// check-then-create path.
package instance
