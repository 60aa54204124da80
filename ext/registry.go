package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type definitionCreatedEntry struct {
	name string
	hook DefinitionCreated
}

type definitionUpdatedEntry struct {
	name string
	hook DefinitionUpdated
}

type definitionDestroyedEntry struct {
	name string
	hook DefinitionDestroyed
}

type destroyDeniedEntry struct {
	name string
	hook DestroyDenied
}

type instanceLaunchedEntry struct {
	name string
	hook InstanceLaunched
}

type launchDeniedEntry struct {
	name string
	hook LaunchDenied
}

type instanceFinishedEntry struct {
	name string
	hook InstanceFinished
}

type tokenRecordedEntry struct {
	name string
	hook TokenRecorded
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	definitionCreated   []definitionCreatedEntry
	definitionUpdated   []definitionUpdatedEntry
	definitionDestroyed []definitionDestroyedEntry
	destroyDenied       []destroyDeniedEntry
	instanceLaunched    []instanceLaunchedEntry
	launchDenied        []launchDeniedEntry
	instanceFinished    []instanceFinishedEntry
	tokenRecorded       []tokenRecordedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(DefinitionCreated); ok {
		r.definitionCreated = append(r.definitionCreated, definitionCreatedEntry{name, h})
	}
	if h, ok := e.(DefinitionUpdated); ok {
		r.definitionUpdated = append(r.definitionUpdated, definitionUpdatedEntry{name, h})
	}
	if h, ok := e.(DefinitionDestroyed); ok {
		r.definitionDestroyed = append(r.definitionDestroyed, definitionDestroyedEntry{name, h})
	}
	if h, ok := e.(DestroyDenied); ok {
		r.destroyDenied = append(r.destroyDenied, destroyDeniedEntry{name, h})
	}
	if h, ok := e.(InstanceLaunched); ok {
		r.instanceLaunched = append(r.instanceLaunched, instanceLaunchedEntry{name, h})
	}
	if h, ok := e.(LaunchDenied); ok {
		r.launchDenied = append(r.launchDenied, launchDeniedEntry{name, h})
	}
	if h, ok := e.(InstanceFinished); ok {
		r.instanceFinished = append(r.instanceFinished, instanceFinishedEntry{name, h})
	}
	if h, ok := e.(TokenRecorded); ok {
		r.tokenRecorded = append(r.tokenRecorded, tokenRecordedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Definition event emitters
// ──────────────────────────────────────────────────

// EmitDefinitionCreated notifies all extensions that implement DefinitionCreated.
func (r *Registry) EmitDefinitionCreated(ctx context.Context, d *definition.Definition) {
	for _, e := range r.definitionCreated {
		if err := e.hook.OnDefinitionCreated(ctx, d); err != nil {
			r.logHookError("OnDefinitionCreated", e.name, err)
		}
	}
}

// EmitDefinitionUpdated notifies all extensions that implement DefinitionUpdated.
func (r *Registry) EmitDefinitionUpdated(ctx context.Context, d *definition.Definition) {
	for _, e := range r.definitionUpdated {
		if err := e.hook.OnDefinitionUpdated(ctx, d); err != nil {
			r.logHookError("OnDefinitionUpdated", e.name, err)
		}
	}
}

// EmitDefinitionDestroyed notifies all extensions that implement DefinitionDestroyed.
func (r *Registry) EmitDefinitionDestroyed(ctx context.Context, d *definition.Definition) {
	for _, e := range r.definitionDestroyed {
		if err := e.hook.OnDefinitionDestroyed(ctx, d); err != nil {
			r.logHookError("OnDefinitionDestroyed", e.name, err)
		}
	}
}

// EmitDestroyDenied notifies all extensions that implement DestroyDenied.
func (r *Registry) EmitDestroyDenied(ctx context.Context, d *definition.Definition, reason string) {
	for _, e := range r.destroyDenied {
		if err := e.hook.OnDestroyDenied(ctx, d, reason); err != nil {
			r.logHookError("OnDestroyDenied", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Launch event emitters
// ──────────────────────────────────────────────────

// EmitInstanceLaunched notifies all extensions that implement InstanceLaunched.
func (r *Registry) EmitInstanceLaunched(ctx context.Context, d *definition.Definition, inst *instance.Instance) {
	for _, e := range r.instanceLaunched {
		if err := e.hook.OnInstanceLaunched(ctx, d, inst); err != nil {
			r.logHookError("OnInstanceLaunched", e.name, err)
		}
	}
}

// EmitLaunchDenied notifies all extensions that implement LaunchDenied.
func (r *Registry) EmitLaunchDenied(ctx context.Context, d *definition.Definition) {
	for _, e := range r.launchDenied {
		if err := e.hook.OnLaunchDenied(ctx, d); err != nil {
			r.logHookError("OnLaunchDenied", e.name, err)
		}
	}
}

// EmitInstanceFinished notifies all extensions that implement InstanceFinished.
func (r *Registry) EmitInstanceFinished(ctx context.Context, inst *instance.Instance, elapsed time.Duration) {
	for _, e := range r.instanceFinished {
		if err := e.hook.OnInstanceFinished(ctx, inst, elapsed); err != nil {
			r.logHookError("OnInstanceFinished", e.name, err)
		}
	}
}

// EmitTokenRecorded notifies all extensions that implement TokenRecorded.
func (r *Registry) EmitTokenRecorded(ctx context.Context, t *token.Token) {
	for _, e := range r.tokenRecorded {
		if err := e.hook.OnTokenRecorded(ctx, t); err != nil {
			r.logHookError("OnTokenRecorded", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the caller.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
