// Package engine implements the RoomFlow workflow engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/logkeys"
	"github.com/roomworks/roomflow/utils/uuid"
	"github.com/roomworks/roomflow/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var ErrNoSuchTemplate = errors.New("no such template")

func NewErrNoSuchTemplate(name string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchTemplate, name)
}

// PermissionGate decides whether an actor's role may approve or reject
// at a stage of a resource type (a template name). A nil gate denies.
type PermissionGate interface {
	Allows(ctx context.Context, role, resourceType string, stage int) (bool, error)
}

// Engine coordinates workflow instances, their approval pipelines, and
// the audit ledger over a storage backend.
type Engine struct {
	templatesMu sync.RWMutex
	templates   map[string]*workflow.Template

	storage storage.Storage
	checks  storage.WorkerStorage
	gate    PermissionGate

	logger log.Logger
	ider   uuid.IDer
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCheckStorage enables scheduling of background detection checks.
func WithCheckStorage(checks storage.WorkerStorage) Option {
	return func(e *Engine) {
		e.checks = checks
	}
}

// New creates a new workflow engine with default configurations.
func New(store storage.Storage, gate PermissionGate, opts ...Option) *Engine {
	engine := &Engine{
		templates: make(map[string]*workflow.Template),
		storage:   store,
		gate:      gate,
		logger:    log.NopLogger,
		ider:      uuid.NewUUID(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// RegisterTemplate registers t with the engine after validating it.
// Registering the same name again replaces the previous template.
func (e *Engine) RegisterTemplate(t *workflow.Template) error {
	if err := t.Valid(); err != nil {
		return fmt.Errorf("validating template: %w", err)
	}
	e.templatesMu.Lock()
	defer e.templatesMu.Unlock()
	e.templates[t.Name] = t
	return nil
}

// Template returns the registered template for name, or nil.
func (e *Engine) Template(name string) *workflow.Template {
	e.templatesMu.RLock()
	defer e.templatesMu.RUnlock()
	return e.templates[name]
}

func (e *Engine) template(name string) (*workflow.Template, error) {
	if t := e.Template(name); t != nil {
		return t, nil
	}
	return nil, NewErrNoSuchTemplate(name)
}

// StartInstance creates, stores, and returns a new instance of the named
// template for unitRef partitioned over subUnits.
func (e *Engine) StartInstance(ctx context.Context, templateName, unitRef string, subUnits []string, actor string) (*workflow.Instance, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.TemplateName, templateName,
		logkeys.UnitRef, unitRef,
	)
	t, err := e.template(templateName)
	if err != nil {
		return nil, logAndError(err, logger, "resolving template")
	}
	inst := workflow.NewInstance(e.ider.ID(), t, unitRef, subUnits)
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return nil, logAndError(err, logger, "storing new instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionStart,
		At:     time.Now(),
	})
	logger.Debug(
		logkeys.Message, "started instance",
		logkeys.InstanceID, inst.ID,
		logkeys.GenericCount, len(subUnits),
	)
	return inst, nil
}

// Instance retrieves the instance for id.
func (e *Engine) Instance(ctx context.Context, id string) (*workflow.Instance, error) {
	return e.storage.RetrieveInstance(ctx, id)
}

// Pending returns submitted instances awaiting stage review. An empty
// templateName matches all templates.
func (e *Engine) Pending(ctx context.Context, templateName string) ([]*workflow.Instance, error) {
	return e.storage.RetrievePendingInstances(ctx, templateName)
}

// AuditEvents returns the append-only ledger for unitRef.
func (e *Engine) AuditEvents(ctx context.Context, unitRef string) ([]storage.AuditEvent, error) {
	return e.storage.RetrieveAuditEvents(ctx, unitRef)
}

// instanceAndTemplate retrieves the instance for id and resolves its template.
func (e *Engine) instanceAndTemplate(ctx context.Context, id string) (*workflow.Instance, *workflow.Template, error) {
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving instance: %w", err)
	}
	t, err := e.template(inst.TemplateName)
	if err != nil {
		return inst, nil, err
	}
	return inst, t, nil
}

// ValidateStep returns the outstanding items blocking completion of step
// i of instance id. An empty return means the step data is complete.
func (e *Engine) ValidateStep(ctx context.Context, id string, i int) ([]string, error) {
	inst, t, err := e.instanceAndTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(t.Steps) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrNoSuchStep, i)
	}
	var p *workflow.Payload
	if i < len(inst.Steps) {
		p = inst.Steps[i].Payload
	}
	return workflow.Missing(&t.Steps[i], p, inst.SubUnits), nil
}

// UpdateStep merges patch into step i of instance id and stores the result.
func (e *Engine) UpdateStep(ctx context.Context, id string, i int, patch *workflow.Payload) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.StepIndex, i,
	)
	inst, t, err := e.instanceAndTemplate(ctx, id)
	if err != nil {
		return logAndError(err, logger, "resolving instance")
	}
	if err = inst.UpdateStep(t, i, patch); err != nil {
		return logAndError(err, logger, "updating step")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	return nil
}

// CompleteStep validates and completes step i of instance id as actor.
// Completing the final step submits the pipeline for review.
func (e *Engine) CompleteStep(ctx context.Context, id string, i int, actor string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.StepIndex, i,
		logkeys.Actor, actor,
	)
	inst, t, err := e.instanceAndTemplate(ctx, id)
	if err != nil {
		return logAndError(err, logger, "resolving instance")
	}
	now := time.Now()
	submitted, err := inst.CompleteStep(t, i, actor, now)
	if err != nil {
		return logAndError(err, logger, "completing step")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionComplete,
		Ref:    t.Steps[i].Name,
		At:     now,
	})
	if submitted {
		e.audit(ctx, logger, inst, &storage.AuditEvent{
			Actor:  actor,
			Action: storage.ActionSubmit,
			At:     now,
		})
		logger.Debug(logkeys.Message, "final step completed, pipeline submitted")
	}
	return nil
}

// Submit submits instance id for stage review once all steps are complete.
func (e *Engine) Submit(ctx context.Context, id string, actor string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.Actor, actor,
	)
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return logAndError(err, logger, "retrieving instance")
	}
	if err = inst.Submit(); err != nil {
		return logAndError(err, logger, "submitting instance")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionSubmit,
		At:     time.Now(),
	})
	return nil
}

// allows consults the permission gate before a stage review action.
// Denial (including a nil gate) maps to workflow.ErrForbidden and leaves
// all state untouched.
func (e *Engine) allows(ctx context.Context, role, resourceType string, stage int) error {
	if e.gate == nil {
		return fmt.Errorf("%w: no permission gate", workflow.ErrForbidden)
	}
	ok, err := e.gate.Allows(ctx, role, resourceType, stage)
	if err != nil {
		return fmt.Errorf("consulting permission gate: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: role %s at stage %d", workflow.ErrForbidden, role, stage)
	}
	return nil
}

// Approve records approval of instance id at stage by actor with role.
func (e *Engine) Approve(ctx context.Context, id string, stage int, actor, role string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.StageIndex, stage,
		logkeys.Actor, actor,
	)
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return logAndError(err, logger, "retrieving instance")
	}
	if err = e.allows(ctx, role, inst.TemplateName, stage); err != nil {
		return logAndError(err, logger, "checking approve permission")
	}
	stageName := inst.Pipeline.CurrentStageName()
	if err = inst.Pipeline.Approve(stage); err != nil {
		return logAndError(err, logger, "approving stage")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionApprove,
		Ref:    stageName,
		At:     time.Now(),
	})
	if inst.Pipeline.Status == workflow.StatusApproved {
		logger.Debug(logkeys.Message, "pipeline fully approved")
	}
	return nil
}

// Reject records rejection of instance id at stage by actor with role.
// A reason is mandatory.
func (e *Engine) Reject(ctx context.Context, id string, stage int, actor, role, reason string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.StageIndex, stage,
		logkeys.Actor, actor,
	)
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return logAndError(err, logger, "retrieving instance")
	}
	if err = e.allows(ctx, role, inst.TemplateName, stage); err != nil {
		return logAndError(err, logger, "checking reject permission")
	}
	stageName := inst.Pipeline.CurrentStageName()
	if err = inst.Pipeline.Reject(stage, reason); err != nil {
		return logAndError(err, logger, "rejecting stage")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionReject,
		Ref:    stageName,
		At:     time.Now(),
		Reason: reason,
	})
	return nil
}

// Resubmit returns rejected instance id to its first stage for a fresh
// full re-review. Step data is untouched.
func (e *Engine) Resubmit(ctx context.Context, id string, actor string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.Actor, actor,
	)
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return logAndError(err, logger, "retrieving instance")
	}
	if err = inst.Pipeline.Resubmit(); err != nil {
		return logAndError(err, logger, "resubmitting instance")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionResubmit,
		At:     time.Now(),
	})
	return nil
}

// Reopen unlocks rejected instance id for revision of its step data.
func (e *Engine) Reopen(ctx context.Context, id string, actor string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.Actor, actor,
	)
	inst, err := e.storage.RetrieveInstance(ctx, id)
	if err != nil {
		return logAndError(err, logger, "retrieving instance")
	}
	if err = inst.Reopen(); err != nil {
		return logAndError(err, logger, "reopening instance")
	}
	if err = e.storage.StoreInstance(ctx, inst); err != nil {
		return logAndError(err, logger, "storing instance")
	}
	e.audit(ctx, logger, inst, &storage.AuditEvent{
		Actor:  actor,
		Action: storage.ActionReopen,
		At:     time.Now(),
	})
	return nil
}

// ScheduleCheck stores a background detection check for step i of
// instance id to run after notUntil. The generated check ID is returned.
func (e *Engine) ScheduleCheck(ctx context.Context, id string, i int, kind string, notUntil time.Time) (string, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, id,
		logkeys.StepIndex, i,
		logkeys.CheckKind, kind,
	)
	if e.checks == nil {
		return "", logAndError(errors.New("check storage not configured"), logger, "scheduling check")
	}
	check := &storage.Check{
		ID:         e.ider.ID(),
		InstanceID: id,
		StepIndex:  i,
		Kind:       kind,
		NotUntil:   notUntil,
	}
	if err := e.checks.StoreCheck(ctx, check); err != nil {
		return "", logAndError(err, logger, "storing check")
	}
	logger.Debug(logkeys.Message, "scheduled check", logkeys.CheckID, check.ID)
	return check.ID, nil
}

// CancelChecks cancels pending checks for instance id. A stepIndex less
// than zero cancels checks for every step.
func (e *Engine) CancelChecks(ctx context.Context, id string, stepIndex int) error {
	if e.checks == nil {
		return nil
	}
	return e.checks.CancelChecks(ctx, id, stepIndex)
}

// audit appends ev to the unit's ledger. Ledger writes never fail the
// operation that produced them; failures are logged.
func (e *Engine) audit(ctx context.Context, logger log.Logger, inst *workflow.Instance, ev *storage.AuditEvent) {
	if err := e.storage.AppendAuditEvent(ctx, inst.UnitRef, ev); err != nil {
		logger.Info(
			logkeys.Message, "appending audit event",
			logkeys.UnitRef, inst.UnitRef,
			"action", string(ev.Action),
			logkeys.Error, err,
		)
	}
}

func logAndError(err error, logger log.Logger, msg string) error {
	logger.Info(
		logkeys.Message, msg,
		logkeys.Error, err,
	)
	return fmt.Errorf("%s: %w", msg, err)
}
