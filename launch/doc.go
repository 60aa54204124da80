// Package launch turns an admission decision into a running instance.
//
// The admission gate alone is check-only: between reading a definition's
// live status snapshot and creating an instance there is a window in which
// a second launcher can pass the same check. Launcher closes that window by
// holding a per-definition mutex (and, optionally, a store-backed TTL lock
// for multi-process deployments) across the check and the create, and by
// emitting an initial WORKING token so later checks see the new instance
// immediately.
package launch
