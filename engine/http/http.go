// Package http contains HTTP handlers that work with the RoomFlow engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/roomworks/roomflow/engine"
	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/http/api"
	"github.com/roomworks/roomflow/logkeys"
	"github.com/roomworks/roomflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoUnitRef = errors.New("no unit ref provided")
	ErrNoActor   = errors.New("no actor provided")
)

type InstanceStarter interface {
	StartInstance(ctx context.Context, templateName, unitRef string, subUnits []string, actor string) (*workflow.Instance, error)
}

type InstanceRetriever interface {
	Instance(ctx context.Context, id string) (*workflow.Instance, error)
}

type StepUpdater interface {
	UpdateStep(ctx context.Context, id string, i int, patch *workflow.Payload) error
}

type StepValidator interface {
	ValidateStep(ctx context.Context, id string, i int) ([]string, error)
}

type StepCompleter interface {
	CompleteStep(ctx context.Context, id string, i int, actor string) error
}

type PipelineReviewer interface {
	Submit(ctx context.Context, id string, actor string) error
	Approve(ctx context.Context, id string, stage int, actor, role string) error
	Reject(ctx context.Context, id string, stage int, actor, role, reason string) error
	Resubmit(ctx context.Context, id string, actor string) error
	Reopen(ctx context.Context, id string, actor string) error
}

type AuditRetriever interface {
	AuditEvents(ctx context.Context, unitRef string) ([]storage.AuditEvent, error)
}

type PendingLister interface {
	Pending(ctx context.Context, templateName string) ([]*workflow.Instance, error)
}

type CheckScheduler interface {
	ScheduleCheck(ctx context.Context, id string, i int, kind string, notUntil time.Time) (string, error)
	CancelChecks(ctx context.Context, id string, stepIndex int) error
}

// statusFor maps engine and workflow errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, engine.ErrNoSuchTemplate):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrOutOfOrder),
		errors.Is(err, workflow.ErrLocked),
		errors.Is(err, workflow.ErrAlreadySubmitted),
		errors.Is(err, workflow.ErrNotRejected),
		errors.Is(err, workflow.ErrStepsIncomplete):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalid),
		errors.Is(err, workflow.ErrMissingReason),
		errors.Is(err, workflow.ErrKindMismatch),
		errors.Is(err, workflow.ErrNoSuchStep):
		return http.StatusBadRequest
	}
	return 0
}

func jsonResponse(w http.ResponseWriter, logger log.Logger, v interface{}) {
	w.Header().Set("Content-type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
	}
}

// stepIndex parses the ":step" URL parameter.
func stepIndex(r *http.Request) (int, error) {
	return strconv.Atoi(flow.Param(r.Context(), "step"))
}

// StartInstanceHandler creates a HandlerFunc that starts an instance of
// the ":name" template. The unit ref is required; sub-units and actor
// are optional repeated/single query parameters.
func StartInstanceHandler(starter InstanceStarter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		unitRef := r.URL.Query().Get("unit")
		if unitRef == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoUnitRef)
			api.JSONError(w, ErrNoUnitRef, http.StatusBadRequest)
			return
		}

		name := flow.Param(r.Context(), "name")
		subUnits := r.URL.Query()["sub_unit"]
		logger = logger.With(
			logkeys.TemplateName, name,
			logkeys.UnitRef, unitRef,
		)
		if len(subUnits) > 0 {
			logger = logger.With(logkeys.FirstSubUnit, subUnits[0])
		}

		logger.Debug(logkeys.Message, "starting instance")
		inst, err := starter.StartInstance(r.Context(), name, unitRef, subUnits, r.URL.Query().Get("actor"))
		if err != nil {
			logger.Info(logkeys.Message, "starting instance", logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}

		jsonResponse(w, logger, &struct {
			InstanceID string `json:"instance_id"`
		}{InstanceID: inst.ID})
	}
}

// GetInstanceHandler creates a HandlerFunc that returns the ":id" instance.
func GetInstanceHandler(retriever InstanceRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		inst, err := retriever.Instance(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving instance", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		jsonResponse(w, logger, inst)
	}
}

// UpdateStepHandler creates a HandlerFunc that merges the request body,
// a JSON payload patch, into the ":step" step of the ":id" instance.
func UpdateStepHandler(updater StepUpdater, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		i, err := stepIndex(r)
		if err != nil {
			logger.Info(logkeys.Message, "parsing step index", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, id, logkeys.StepIndex, i)

		patch := new(workflow.Payload)
		if err = json.NewDecoder(r.Body).Decode(patch); err != nil {
			logger.Info(logkeys.Message, "decoding payload patch", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		if err = updater.UpdateStep(r.Context(), id, i, patch); err != nil {
			logger.Info(logkeys.Message, "updating step", logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ValidateStepHandler creates a HandlerFunc that returns the outstanding
// items blocking completion of the ":step" step of the ":id" instance.
func ValidateStepHandler(validator StepValidator, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		i, err := stepIndex(r)
		if err != nil {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		missing, err := validator.ValidateStep(r.Context(), id, i)
		if err != nil {
			logger.Info(logkeys.Message, "validating step", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		if missing == nil {
			missing = []string{}
		}
		jsonResponse(w, logger, &struct {
			Valid   bool     `json:"valid"`
			Missing []string `json:"missing"`
		}{Valid: len(missing) == 0, Missing: missing})
	}
}

// CompleteStepHandler creates a HandlerFunc that completes the ":step"
// step of the ":id" instance as the actor query parameter.
func CompleteStepHandler(completer StepCompleter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		i, err := stepIndex(r)
		if err != nil {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		actor := r.URL.Query().Get("actor")
		if actor == "" {
			api.JSONError(w, ErrNoActor, http.StatusBadRequest)
			return
		}
		if err = completer.CompleteStep(r.Context(), id, i, actor); err != nil {
			logger.Info(logkeys.Message, "completing step", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// reviewRequest is the JSON body of the stage review endpoints.
type reviewRequest struct {
	Actor  string `json:"actor"`
	Role   string `json:"role"`
	Stage  int    `json:"stage"`
	Reason string `json:"reason,omitempty"`
}

func decodeReview(r *http.Request) (*reviewRequest, error) {
	review := new(reviewRequest)
	if err := json.NewDecoder(r.Body).Decode(review); err != nil {
		return nil, err
	}
	if review.Actor == "" {
		return nil, ErrNoActor
	}
	return review, nil
}

// ApproveHandler creates a HandlerFunc that records stage approval of
// the ":id" instance.
func ApproveHandler(reviewer PipelineReviewer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		review, err := decodeReview(r)
		if err != nil {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if err = reviewer.Approve(r.Context(), id, review.Stage, review.Actor, review.Role); err != nil {
			logger.Info(logkeys.Message, "approving stage", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RejectHandler creates a HandlerFunc that records stage rejection of
// the ":id" instance. The body must carry a reason.
func RejectHandler(reviewer PipelineReviewer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		review, err := decodeReview(r)
		if err != nil {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if err = reviewer.Reject(r.Context(), id, review.Stage, review.Actor, review.Role, review.Reason); err != nil {
			logger.Info(logkeys.Message, "rejecting stage", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// instanceActionHandler creates a HandlerFunc for the submit, resubmit,
// and reopen endpoints, which share a shape: ":id" plus an actor.
func instanceActionHandler(action func(ctx context.Context, id, actor string) error, msg string, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		actor := r.URL.Query().Get("actor")
		if actor == "" {
			api.JSONError(w, ErrNoActor, http.StatusBadRequest)
			return
		}
		if err := action(r.Context(), id, actor); err != nil {
			logger.Info(logkeys.Message, msg, logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AuditEventsHandler creates a HandlerFunc that returns the append-only
// ledger for the ":unit" unit ref.
func AuditEventsHandler(retriever AuditRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		unitRef := flow.Param(r.Context(), "unit")
		events, err := retriever.AuditEvents(r.Context(), unitRef)
		if err != nil {
			logger.Info(logkeys.Message, "retrieving audit events", logkeys.UnitRef, unitRef, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		jsonResponse(w, logger, events)
	}
}

// PendingHandler creates a HandlerFunc that lists submitted instances
// awaiting stage review, optionally filtered by the template query
// parameter.
func PendingHandler(lister PendingLister, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		pending, err := lister.Pending(r.Context(), r.URL.Query().Get("template"))
		if err != nil {
			logger.Info(logkeys.Message, "listing pending instances", logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		if pending == nil {
			pending = []*workflow.Instance{}
		}
		jsonResponse(w, logger, pending)
	}
}

// ScheduleCheckHandler creates a HandlerFunc that schedules a background
// detection check for the ":step" step of the ":id" instance. The kind
// query parameter names the detection; not_until is optional RFC 3339.
func ScheduleCheckHandler(scheduler CheckScheduler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		i, err := stepIndex(r)
		if err != nil {
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		var notUntil time.Time
		if s := r.URL.Query().Get("not_until"); s != "" {
			if notUntil, err = time.Parse(time.RFC3339, s); err != nil {
				api.JSONError(w, err, http.StatusBadRequest)
				return
			}
		}
		checkID, err := scheduler.ScheduleCheck(r.Context(), id, i, r.URL.Query().Get("kind"), notUntil)
		if err != nil {
			logger.Info(logkeys.Message, "scheduling check", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		jsonResponse(w, logger, &struct {
			CheckID string `json:"check_id"`
		}{CheckID: checkID})
	}
}

// CancelChecksHandler creates a HandlerFunc that cancels pending checks
// for the ":id" instance. A step query parameter narrows cancellation to
// one step; otherwise every step's checks are cancelled.
func CancelChecksHandler(scheduler CheckScheduler, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		stepIndex := -1
		if s := r.URL.Query().Get("step"); s != "" {
			var err error
			if stepIndex, err = strconv.Atoi(s); err != nil {
				api.JSONError(w, err, http.StatusBadRequest)
				return
			}
		}
		if err := scheduler.CancelChecks(r.Context(), id, stepIndex); err != nil {
			logger.Info(logkeys.Message, "cancelling checks", logkeys.InstanceID, id, logkeys.Error, err)
			api.JSONError(w, err, statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
