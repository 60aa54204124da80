// Package audit is a kuroko2 extension that bridges lifecycle events to an
// immutable audit trail backend.
//
// Every definition, launch, and token lifecycle hook emits a structured audit
// event through the [Recorder] interface. The extension assigns appropriate
// severity levels (info for normal operations, warning for denials and
// failure tokens, critical for critical tokens) and rich metadata (definition
// name, prevent-multi mode, token status, denial reasons).
//
// # Usage
//
//	audit.New(audit.RecorderFunc(func(ctx context.Context, evt *audit.Event) error {
//	    return trail.Write(ctx, evt.Action, evt.Resource, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionDestroyDenied,
//	        audit.ActionDefinitionDestroyed,
//	    ),
//	)
package audit
