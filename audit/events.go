package audit

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionDefinitionCreated   = "definition.created"
	ActionDefinitionUpdated   = "definition.updated"
	ActionDefinitionDestroyed = "definition.destroyed"
	ActionDestroyDenied       = "definition.destroy_denied"
	ActionInstanceLaunched    = "instance.launched"
	ActionLaunchDenied        = "instance.launch_denied"
	ActionInstanceFinished    = "instance.finished"
	ActionTokenRecorded       = "token.recorded"
)

// Audit event categories group related actions.
const (
	CategoryDefinition = "kuroko2.definition"
	CategoryInstance   = "kuroko2.instance"
	CategoryToken      = "kuroko2.token"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceDefinition = "definition"
	ResourceInstance   = "instance"
	ResourceToken      = "token"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionDefinitionCreated,
		ActionDefinitionUpdated,
		ActionDefinitionDestroyed,
		ActionDestroyDenied,
		ActionInstanceLaunched,
		ActionLaunchDenied,
		ActionInstanceFinished,
		ActionTokenRecorded,
	}
}
