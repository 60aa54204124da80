// Package ext defines the extension system for kuroko2.
// Extensions are notified of lifecycle events (definition created, launch
// admitted or denied, token recorded, destroy denied, etc.) and can react to
// them — logging, metrics, audit trails, webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Definition lifecycle hooks
// ──────────────────────────────────────────────────

// DefinitionCreated is called after a definition is successfully persisted.
type DefinitionCreated interface {
	OnDefinitionCreated(ctx context.Context, d *definition.Definition) error
}

// DefinitionUpdated is called after a definition update passes the version
// check and is persisted.
type DefinitionUpdated interface {
	OnDefinitionUpdated(ctx context.Context, d *definition.Definition) error
}

// DefinitionDestroyed is called after a definition and its instances and
// tokens have been removed.
type DefinitionDestroyed interface {
	OnDefinitionDestroyed(ctx context.Context, d *definition.Definition) error
}

// DestroyDenied is called when the lifecycle guard refuses to destroy a
// definition that still carries tokens.
type DestroyDenied interface {
	OnDestroyDenied(ctx context.Context, d *definition.Definition, reason string) error
}

// ──────────────────────────────────────────────────
// Launch lifecycle hooks
// ──────────────────────────────────────────────────

// InstanceLaunched is called after an admitted launch creates its instance.
type InstanceLaunched interface {
	OnInstanceLaunched(ctx context.Context, d *definition.Definition, inst *instance.Instance) error
}

// LaunchDenied is called when the admission gate denies a launch.
type LaunchDenied interface {
	OnLaunchDenied(ctx context.Context, d *definition.Definition) error
}

// InstanceFinished is called after an instance is marked finished.
type InstanceFinished interface {
	OnInstanceFinished(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error
}

// TokenRecorded is called after a status token is appended.
type TokenRecorded interface {
	OnTokenRecorded(ctx context.Context, t *token.Token) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
