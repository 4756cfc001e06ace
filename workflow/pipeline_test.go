package workflow

import (
	"errors"
	"testing"
)

func TestPipelineFourStage(t *testing.T) {
	p := NewPipeline([]string{"field", "project", "operations", "final"})

	if err := p.Approve(0); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("approve before submit: have %v, want ErrOutOfOrder", err)
	}
	if err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("double submit: have %v, want ErrAlreadySubmitted", err)
	}
	if p.Status != StatusInStage || p.StageIndex != 0 {
		t.Fatalf("have status %s stage %d", p.Status, p.StageIndex)
	}
	if p.CurrentStageName() != "field" {
		t.Errorf("have stage name %q", p.CurrentStageName())
	}

	// wrong stage never advances
	if err := p.Approve(2); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("wrong stage approve: have %v", err)
	}
	if p.StageIndex != 0 {
		t.Error("failed approve moved the stage index")
	}

	for stage := 0; stage < 3; stage++ {
		before := p.StageIndex
		if err := p.Approve(stage); err != nil {
			t.Fatal(err)
		}
		if p.StageIndex <= before {
			t.Error("approve did not advance the stage index")
		}
	}
	if p.Status != StatusInStage || p.StageIndex != 3 {
		t.Fatalf("have status %s stage %d, want in_stage 3", p.Status, p.StageIndex)
	}
	if err := p.Approve(3); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusApproved {
		t.Fatalf("have status %s, want approved", p.Status)
	}
	// terminal: no further transitions
	if err := p.Approve(4); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("approve after approval: have %v", err)
	}
	if err := p.Reject(4, "nope"); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("reject after approval: have %v", err)
	}
}

func TestPipelineRejectResubmit(t *testing.T) {
	p := NewPipeline([]string{"first", "second"})
	if err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := p.Approve(0); err != nil {
		t.Fatal(err)
	}

	if err := p.Reject(1, ""); !errors.Is(err, ErrMissingReason) {
		t.Errorf("empty reason: have %v, want ErrMissingReason", err)
	}
	if p.Status != StatusInStage {
		t.Error("failed reject changed status")
	}

	if err := p.Reject(1, "missing SN"); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusRejected || p.RejectReason != "missing SN" {
		t.Fatalf("have status %s reason %q", p.Status, p.RejectReason)
	}

	if err := p.Resubmit(); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusInStage || p.StageIndex != 0 || p.RejectReason != "" {
		t.Fatalf("resubmit: have status %s stage %d reason %q", p.Status, p.StageIndex, p.RejectReason)
	}

	if err := p.Resubmit(); !errors.Is(err, ErrNotRejected) {
		t.Errorf("resubmit while in stage: have %v", err)
	}
}

func TestPipelineSingleStage(t *testing.T) {
	p := NewPipeline([]string{"review"})
	if err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := p.Approve(0); err != nil {
		t.Fatal(err)
	}
	// single-stage pipelines move directly to approved
	if p.Status != StatusApproved {
		t.Fatalf("have status %s, want approved", p.Status)
	}
}

func TestPipelineReopen(t *testing.T) {
	p := NewPipeline([]string{"review"})
	if err := p.Reopen(); !errors.Is(err, ErrNotRejected) {
		t.Errorf("reopen unsubmitted: have %v", err)
	}
	if err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	if err := p.Reject(0, "blurry photos"); err != nil {
		t.Fatal(err)
	}
	if err := p.Reopen(); err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusNotSubmitted || p.RejectReason != "" {
		t.Fatalf("have status %s reason %q", p.Status, p.RejectReason)
	}
}
