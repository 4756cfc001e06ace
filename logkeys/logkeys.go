// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	// a unit of work reference. i.e. a store ID, device ID, ticket ID, etc.
	UnitRef = "unit"

	InstanceID   = "instance_id"
	TemplateName = "template_name"
	StepIndex    = "step_index"
	StepName     = "step_name"
	StageIndex   = "stage_index"
	StageName    = "stage_name"

	// display name of the person performing a mutating action
	Actor = "actor"

	CheckID   = "check_id"
	CheckKind = "check_kind"

	// in cases where we might need to log multiple sub-units but only
	// want to log the first (to avoid massive lists in logs).
	FirstSubUnit = "sub_unit_first"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
