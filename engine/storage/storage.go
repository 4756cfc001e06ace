// Package storage defines types and primitives for workflow engine storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/roomworks/roomflow/workflow"
)

var (
	// ErrNotFound is returned when an instance (or other record) does not exist.
	ErrNotFound = errors.New("not found")

	ErrEmptyInstance     = errors.New("empty instance")
	ErrMissingInstanceID = errors.New("missing instance id")
	ErrMissingUnitRef    = errors.New("missing unit ref")

	ErrEmptyEvent     = errors.New("empty audit event")
	ErrMissingAction  = errors.New("missing audit action")
	ErrEmptyCheck     = errors.New("empty check")
	ErrMissingCheckID = errors.New("missing check id")
)

// AuditAction enumerates the status-changing actions recorded to the ledger.
// Storage backends persist these string values. Treat them as append-only.
type AuditAction string

const (
	ActionStart    AuditAction = "start"
	ActionComplete AuditAction = "complete"
	ActionSubmit   AuditAction = "submit"
	ActionApprove  AuditAction = "approve"
	ActionReject   AuditAction = "reject"
	ActionResubmit AuditAction = "resubmit"
	ActionReopen   AuditAction = "reopen"
)

// AuditEvent is one append-only ledger record: who did what, when, to
// which step or stage. Events are never mutated or deleted once written;
// corrections are modeled as new events.
type AuditEvent struct {
	Actor  string      `json:"actor"`
	Action AuditAction `json:"action"`

	// step or stage name the action applied to, if any.
	Ref string `json:"ref,omitempty"`

	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Validate checks for missing values.
func (e *AuditEvent) Validate() error {
	if e == nil {
		return ErrEmptyEvent
	}
	if e.Action == "" {
		return ErrMissingAction
	}
	return nil
}

// Check is a scheduled background detection check for one step of an
// instance. The worker runs due checks through a Checker whose result is
// applied as an ordinary step payload update. A cancelled check is
// removed from storage and its result callback never fires.
type Check struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	StepIndex  int    `json:"step_index"`

	// what the checker should detect, e.g. "network" or "device-log".
	Kind string `json:"kind"`

	// a check should not run until after this time has passed.
	NotUntil time.Time `json:"not_until,omitempty"`
}

// Validate checks for missing values.
func (c *Check) Validate() error {
	if c == nil {
		return ErrEmptyCheck
	}
	if c.ID == "" {
		return ErrMissingCheckID
	}
	if c.InstanceID == "" {
		return ErrMissingInstanceID
	}
	return nil
}

type InstanceStorage interface {
	// StoreInstance persists inst keyed by its ID, creating or replacing it.
	StoreInstance(ctx context.Context, inst *workflow.Instance) error

	// RetrieveInstance returns the instance for id.
	// ErrNotFound is returned if id has not been stored.
	RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error)

	// RetrievePendingInstances returns instances of templateName whose
	// pipelines are in a stage awaiting review. An empty templateName
	// matches all templates.
	RetrievePendingInstances(ctx context.Context, templateName string) ([]*workflow.Instance, error)
}

type AuditStorage interface {
	// AppendAuditEvent appends ev to the ledger for unitRef.
	// The ledger is append-only: no mutation or deletion primitive exists.
	AppendAuditEvent(ctx context.Context, unitRef string, ev *AuditEvent) error

	// RetrieveAuditEvents returns the ledger for unitRef in append order.
	// Per-unit ordering follows wall-clock append order; cross-unit
	// ordering is not guaranteed.
	RetrieveAuditEvents(ctx context.Context, unitRef string) ([]AuditEvent, error)
}

// Storage is the primary interface for workflow engine storage backends.
type Storage interface {
	InstanceStorage
	AuditStorage
}

// WorkerStorage is used by the engine worker for scheduled detection checks.
type WorkerStorage interface {
	// StoreCheck stores a scheduled check.
	StoreCheck(ctx context.Context, c *Check) error

	// RetrieveDueChecks fetches checks whose NotUntil has passed.
	//
	// Any retrieved check is assumed to be permanently claimed and will
	// not be retrieved again with this method.
	RetrieveDueChecks(ctx context.Context, now time.Time) ([]*Check, error)

	// CancelChecks removes pending checks for an instance. A stepIndex
	// less than zero cancels checks for every step. A cancelled check
	// never fires.
	CancelChecks(ctx context.Context, instanceID string, stepIndex int) error
}

type AllStorage interface {
	Storage
	WorkerStorage
}
