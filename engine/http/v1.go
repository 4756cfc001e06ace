package http

import (
	"net/http"

	"github.com/micromdm/nanolib/log"
)

type APIEngine interface {
	InstanceStarter
	InstanceRetriever
	StepUpdater
	StepValidator
	StepCompleter
	PipelineReviewer
	AuditRetriever
	PendingLister
	CheckScheduler
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the engine API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine) {
	// instances

	mux.Handle(
		prefix+"/instance/:name/start",
		StartInstanceHandler(e, logger.With("handler", "start instance")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id",
		GetInstanceHandler(e, logger.With("handler", "get instance")),
		"GET",
	)
	mux.Handle(
		prefix+"/instance/:id/step/:step",
		UpdateStepHandler(e, logger.With("handler", "update step")),
		"PUT",
	)
	mux.Handle(
		prefix+"/instance/:id/step/:step/validate",
		ValidateStepHandler(e, logger.With("handler", "validate step")),
		"GET",
	)
	mux.Handle(
		prefix+"/instance/:id/step/:step/complete",
		CompleteStepHandler(e, logger.With("handler", "complete step")),
		"POST",
	)

	// pipeline review

	mux.Handle(
		prefix+"/instance/:id/submit",
		instanceActionHandler(e.Submit, "submitting instance", logger.With("handler", "submit instance")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id/approve",
		ApproveHandler(e, logger.With("handler", "approve stage")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id/reject",
		RejectHandler(e, logger.With("handler", "reject stage")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id/resubmit",
		instanceActionHandler(e.Resubmit, "resubmitting instance", logger.With("handler", "resubmit instance")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id/reopen",
		instanceActionHandler(e.Reopen, "reopening instance", logger.With("handler", "reopen instance")),
		"POST",
	)

	// checks

	mux.Handle(
		prefix+"/instance/:id/step/:step/check",
		ScheduleCheckHandler(e, logger.With("handler", "schedule check")),
		"POST",
	)
	mux.Handle(
		prefix+"/instance/:id/check",
		CancelChecksHandler(e, logger.With("handler", "cancel checks")),
		"DELETE",
	)

	// review queue and ledger

	mux.Handle(
		prefix+"/pending",
		PendingHandler(e, logger.With("handler", "pending instances")),
		"GET",
	)
	mux.Handle(
		prefix+"/audit/:unit",
		AuditEventsHandler(e, logger.With("handler", "audit events")),
		"GET",
	)
}
