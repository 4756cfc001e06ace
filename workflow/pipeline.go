package workflow

import (
	"encoding/json"
	"fmt"
)

// PipelineStatus is the approval state of a pipeline.
type PipelineStatus uint

const (
	// Steps are still being collected (or were reopened for revision).
	// This is the default status (0 value).
	StatusNotSubmitted PipelineStatus = iota

	// Awaiting review at the stage indicated by Pipeline.StageIndex.
	StatusInStage

	// Terminal: every stage approved in order. Immutable.
	StatusApproved

	// Rejected at some stage; awaiting resubmission or reopening.
	StatusRejected

	maxPipelineStatus
)

func (s PipelineStatus) Valid() bool {
	return s < maxPipelineStatus
}

func (s PipelineStatus) String() string {
	switch s {
	case StatusNotSubmitted:
		return "not_submitted"
	case StatusInStage:
		return "in_stage"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown pipeline status: %d", uint(s))
	}
}

func PipelineStatusForString(str string) PipelineStatus {
	switch str {
	case "not_submitted":
		return StatusNotSubmitted
	case "in_stage":
		return StatusInStage
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	default:
		return maxPipelineStatus
	}
}

// MarshalJSON encodes the status as its string name.
func (s PipelineStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid pipeline status: %d", uint(s))
	}
	return json.Marshal(s.String())
}

func (s *PipelineStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	status := PipelineStatusForString(str)
	if !status.Valid() {
		return fmt.Errorf("invalid pipeline status: %s", str)
	}
	*s = status
	return nil
}

// Pipeline is the ordered chain of approval stages applied to a unit of
// work once all of its steps are complete. StageIndex only ever advances
// while submitted; approval of the final stage moves it past the last
// stage and the status to Approved.
type Pipeline struct {
	Stages       []string       `json:"stages"`
	StageIndex   int            `json:"stage_index"`
	Status       PipelineStatus `json:"status"`
	RejectReason string         `json:"reject_reason,omitempty"`
}

// NewPipeline creates an unsubmitted pipeline with the given stage names.
func NewPipeline(stages []string) Pipeline {
	return Pipeline{Stages: stages}
}

// CurrentStageName returns the name of the stage awaiting review, or an
// empty string if the pipeline is not in a stage.
func (p *Pipeline) CurrentStageName() string {
	if p.Status != StatusInStage || p.StageIndex < 0 || p.StageIndex >= len(p.Stages) {
		return ""
	}
	return p.Stages[p.StageIndex]
}

// Submit moves an unsubmitted pipeline into its first approval stage.
// A pipeline with zero stages approves immediately (empty-set convention).
func (p *Pipeline) Submit() error {
	if p.Status != StatusNotSubmitted {
		return ErrAlreadySubmitted
	}
	p.StageIndex = 0
	if len(p.Stages) < 1 {
		p.Status = StatusApproved
		return nil
	}
	p.Status = StatusInStage
	return nil
}

// Approve records approval at stage. The stage must be the pipeline's
// current stage. Approving the final stage moves the pipeline to Approved.
func (p *Pipeline) Approve(stage int) error {
	if p.Status != StatusInStage || stage != p.StageIndex {
		return fmt.Errorf("%w: approve at stage %d, status %s, stage %d", ErrOutOfOrder, stage, p.Status, p.StageIndex)
	}
	p.StageIndex++
	if p.StageIndex >= len(p.Stages) {
		p.Status = StatusApproved
	}
	return nil
}

// Reject records rejection at stage with a mandatory reason. The stage
// must be the pipeline's current stage.
func (p *Pipeline) Reject(stage int, reason string) error {
	if p.Status != StatusInStage || stage != p.StageIndex {
		return fmt.Errorf("%w: reject at stage %d, status %s, stage %d", ErrOutOfOrder, stage, p.Status, p.StageIndex)
	}
	if reason == "" {
		return ErrMissingReason
	}
	p.Status = StatusRejected
	p.RejectReason = reason
	return nil
}

// Resubmit returns a rejected pipeline to its first stage for a fresh full
// re-review, clearing the rejection reason. Step data is untouched.
func (p *Pipeline) Resubmit() error {
	if p.Status != StatusRejected {
		return ErrNotRejected
	}
	p.RejectReason = ""
	p.StageIndex = 0
	if len(p.Stages) < 1 {
		p.Status = StatusApproved
		return nil
	}
	p.Status = StatusInStage
	return nil
}

// Reopen clears a rejection and returns the pipeline to the unsubmitted
// state so step data can be revised before resubmission.
func (p *Pipeline) Reopen() error {
	if p.Status != StatusRejected {
		return ErrNotRejected
	}
	p.RejectReason = ""
	p.StageIndex = 0
	p.Status = StatusNotSubmitted
	return nil
}
