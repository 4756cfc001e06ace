package workflow

import (
	"fmt"
	"time"
)

// StepState is the mutable state of one step of an instance. The payload
// is editable until the step completes; a completed step's payload is
// frozen unless the instance is rejected and reopened.
type StepState struct {
	Index       int       `json:"index"`
	Payload     *Payload  `json:"payload,omitempty"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Operator    string    `json:"operator,omitempty"`
}

// Instance is one unit of work progressing through a template's steps and
// approval stages. Instances follow the single-writer-per-unit model: one
// in-flight client action mutates an instance at a time.
type Instance struct {
	ID           string `json:"id"`
	TemplateName string `json:"template_name"`

	// external reference to the unit of work: store ID, device ID,
	// ticket ID, etc.
	UnitRef string `json:"unit_ref"`

	// the known sub-units (rooms, devices) any PerSubUnit step data is
	// partitioned over. Supplied by the unit registry at creation.
	SubUnits []string `json:"sub_units,omitempty"`

	// fixed length, one per template step, strictly gated left to right.
	Steps []StepState `json:"steps"`

	// view cursor. navigation never mutates completion state.
	Cursor int `json:"cursor"`

	Pipeline Pipeline `json:"pipeline"`
}

// NewInstance creates a new instance of template t for unitRef.
func NewInstance(id string, t *Template, unitRef string, subUnits []string) *Instance {
	inst := &Instance{
		ID:           id,
		TemplateName: t.Name,
		UnitRef:      unitRef,
		SubUnits:     subUnits,
		Steps:        make([]StepState, len(t.Steps)),
		Pipeline:     NewPipeline(t.Stages),
	}
	for i := range inst.Steps {
		inst.Steps[i].Index = i
	}
	return inst
}

// checkTemplate guards instance operations against being handed the wrong
// (or a changed) template.
func (inst *Instance) checkTemplate(t *Template) error {
	if t == nil || t.Name != inst.TemplateName || len(t.Steps) != len(inst.Steps) {
		return ErrTemplateMismatch
	}
	return nil
}

func (inst *Instance) step(i int) (*StepState, error) {
	if i < 0 || i >= len(inst.Steps) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchStep, i)
	}
	return &inst.Steps[i], nil
}

// UpdateStep merges patch into step i's payload. Completed steps are
// locked; a rejected instance must be reopened before its steps unlock.
func (inst *Instance) UpdateStep(t *Template, i int, patch *Payload) error {
	if err := inst.checkTemplate(t); err != nil {
		return err
	}
	ss, err := inst.step(i)
	if err != nil {
		return err
	}
	if ss.Completed {
		return fmt.Errorf("%w: step %d", ErrLocked, i)
	}
	if ss.Payload == nil {
		ss.Payload = NewPayload(t.Steps[i].Kind)
	}
	return ss.Payload.Merge(patch)
}

// CompleteStep validates and marks step i complete, stamping the actor and
// time. Completion is the sole ordering enforcement point: step i-1 must
// already be complete regardless of what the cursor allowed a client to
// view. Completing the final step submits the pipeline; the returned bool
// reports whether that happened.
func (inst *Instance) CompleteStep(t *Template, i int, actor string, now time.Time) (bool, error) {
	if err := inst.checkTemplate(t); err != nil {
		return false, err
	}
	ss, err := inst.step(i)
	if err != nil {
		return false, err
	}
	if ss.Completed {
		return false, fmt.Errorf("%w: step %d already completed", ErrLocked, i)
	}
	if i > 0 && !inst.Steps[i-1].Completed {
		return false, fmt.Errorf("%w: step %d incomplete", ErrOutOfOrder, i-1)
	}
	if !IsStepValid(&t.Steps[i], ss.Payload, inst.SubUnits) {
		return false, fmt.Errorf("%w: step %d", ErrInvalid, i)
	}
	ss.Completed = true
	ss.CompletedAt = now
	ss.Operator = actor
	if i != len(inst.Steps)-1 {
		return false, nil
	}
	if err = inst.Pipeline.Submit(); err != nil {
		ss.Completed = false
		ss.CompletedAt = time.Time{}
		ss.Operator = ""
		return false, err
	}
	return true, nil
}

// AllStepsCompleted reports whether every step is complete. Vacuously true
// for zero-step templates.
func (inst *Instance) AllStepsCompleted() bool {
	for i := range inst.Steps {
		if !inst.Steps[i].Completed {
			return false
		}
	}
	return true
}

// Submit submits the pipeline for review once all steps are complete.
// Instances of zero-step templates are immediately eligible.
func (inst *Instance) Submit() error {
	if !inst.AllStepsCompleted() {
		return ErrStepsIncomplete
	}
	return inst.Pipeline.Submit()
}

// Reopen unlocks a rejected instance for revision: the rejection is
// cleared and the last completed step onward becomes editable again.
// Payloads are left intact so the operator fixes what was rejected rather
// than redoing everything.
func (inst *Instance) Reopen() error {
	if err := inst.Pipeline.Reopen(); err != nil {
		return err
	}
	last := -1
	for i := range inst.Steps {
		if inst.Steps[i].Completed {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	for i := last; i < len(inst.Steps); i++ {
		inst.Steps[i].Completed = false
	}
	inst.Cursor = last
	return nil
}

// JumpToStep moves the view cursor to step i. Any step may be viewed
// regardless of completion.
func (inst *Instance) JumpToStep(i int) error {
	if _, err := inst.step(i); err != nil {
		return err
	}
	inst.Cursor = i
	return nil
}

// Next moves the view cursor forward one step, if any.
func (inst *Instance) Next() {
	if inst.Cursor < len(inst.Steps)-1 {
		inst.Cursor++
	}
}

// Prev moves the view cursor back one step, if any.
func (inst *Instance) Prev() {
	if inst.Cursor > 0 {
		inst.Cursor--
	}
}
