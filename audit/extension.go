package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/ext"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*Extension)(nil)
	_ ext.DefinitionCreated   = (*Extension)(nil)
	_ ext.DefinitionUpdated   = (*Extension)(nil)
	_ ext.DefinitionDestroyed = (*Extension)(nil)
	_ ext.DestroyDenied       = (*Extension)(nil)
	_ ext.InstanceLaunched    = (*Extension)(nil)
	_ ext.LaunchDenied        = (*Extension)(nil)
	_ ext.InstanceFinished    = (*Extension)(nil)
	_ ext.TokenRecorded       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not depend on any particular
// audit store — callers inject the concrete backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is a structured audit record of one lifecycle action.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// Extension bridges kuroko2 lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Definition lifecycle hooks ──────────────────────

// OnDefinitionCreated implements ext.DefinitionCreated.
func (e *Extension) OnDefinitionCreated(ctx context.Context, d *definition.Definition) error {
	return e.record(ctx, ActionDefinitionCreated, SeverityInfo, OutcomeSuccess,
		ResourceDefinition, d.ID.String(), CategoryDefinition, "",
		"definition_name", d.Name,
		"prevent_multi", d.PreventMulti.String(),
	)
}

// OnDefinitionUpdated implements ext.DefinitionUpdated.
func (e *Extension) OnDefinitionUpdated(ctx context.Context, d *definition.Definition) error {
	return e.record(ctx, ActionDefinitionUpdated, SeverityInfo, OutcomeSuccess,
		ResourceDefinition, d.ID.String(), CategoryDefinition, "",
		"definition_name", d.Name,
		"prevent_multi", d.PreventMulti.String(),
		"version", d.Version,
	)
}

// OnDefinitionDestroyed implements ext.DefinitionDestroyed.
func (e *Extension) OnDefinitionDestroyed(ctx context.Context, d *definition.Definition) error {
	return e.record(ctx, ActionDefinitionDestroyed, SeverityInfo, OutcomeSuccess,
		ResourceDefinition, d.ID.String(), CategoryDefinition, "",
		"definition_name", d.Name,
	)
}

// OnDestroyDenied implements ext.DestroyDenied.
func (e *Extension) OnDestroyDenied(ctx context.Context, d *definition.Definition, reason string) error {
	return e.record(ctx, ActionDestroyDenied, SeverityWarning, OutcomeDenied,
		ResourceDefinition, d.ID.String(), CategoryDefinition, reason,
		"definition_name", d.Name,
	)
}

// ── Launch lifecycle hooks ──────────────────────────

// OnInstanceLaunched implements ext.InstanceLaunched.
func (e *Extension) OnInstanceLaunched(ctx context.Context, d *definition.Definition, inst *instance.Instance) error {
	return e.record(ctx, ActionInstanceLaunched, SeverityInfo, OutcomeSuccess,
		ResourceInstance, inst.ID.String(), CategoryInstance, "",
		"definition_id", d.ID.String(),
		"definition_name", d.Name,
		"launched_by", inst.LaunchedBy.String(),
	)
}

// OnLaunchDenied implements ext.LaunchDenied.
func (e *Extension) OnLaunchDenied(ctx context.Context, d *definition.Definition) error {
	return e.record(ctx, ActionLaunchDenied, SeverityInfo, OutcomeDenied,
		ResourceDefinition, d.ID.String(), CategoryInstance, "",
		"definition_name", d.Name,
		"prevent_multi", d.PreventMulti.String(),
	)
}

// OnInstanceFinished implements ext.InstanceFinished.
func (e *Extension) OnInstanceFinished(ctx context.Context, inst *instance.Instance, elapsed time.Duration) error {
	return e.record(ctx, ActionInstanceFinished, SeverityInfo, OutcomeSuccess,
		ResourceInstance, inst.ID.String(), CategoryInstance, "",
		"definition_id", inst.DefinitionID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ── Token lifecycle hooks ───────────────────────────

// OnTokenRecorded implements ext.TokenRecorded.
func (e *Extension) OnTokenRecorded(ctx context.Context, t *token.Token) error {
	severity := SeverityInfo
	switch t.Status {
	case token.StatusCritical:
		severity = SeverityCritical
	case token.StatusFailure:
		severity = SeverityWarning
	}
	return e.record(ctx, ActionTokenRecorded, severity, OutcomeSuccess,
		ResourceToken, t.ID.String(), CategoryToken, "",
		"instance_id", t.InstanceID.String(),
		"definition_id", t.DefinitionID.String(),
		"status", string(t.Status),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category, reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
