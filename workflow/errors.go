package workflow

import "errors"

// Operation errors. Every operation that returns one of these leaves the
// instance and pipeline state unchanged.
var (
	// ErrOutOfOrder occurs when completing a step whose predecessor is
	// incomplete, or when approving/rejecting at other than the
	// pipeline's current stage.
	ErrOutOfOrder = errors.New("out of order")

	// ErrInvalid occurs when a step payload fails validation.
	// Recoverable: the operator corrects the data and retries.
	ErrInvalid = errors.New("step data invalid")

	// ErrLocked occurs when editing (or re-completing) a completed step
	// that has not been reopened.
	ErrLocked = errors.New("step locked")

	// ErrForbidden occurs when the permission gate denies an
	// approve/reject action for the actor's role at a stage.
	ErrForbidden = errors.New("forbidden")

	// ErrMissingReason occurs when rejecting without a reason.
	ErrMissingReason = errors.New("missing reject reason")

	ErrNoSuchStep       = errors.New("no such step")
	ErrStepsIncomplete  = errors.New("steps incomplete")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrNotRejected      = errors.New("not rejected")
	ErrKindMismatch     = errors.New("payload kind mismatch")
	ErrTemplateMismatch = errors.New("template does not match instance")
)
