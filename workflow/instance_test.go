package workflow

import (
	"errors"
	"testing"
	"time"
)

func testTemplate() *Template {
	return &Template{
		Name: "test.checklists",
		Steps: []StepDefinition{
			{Name: "one", Kind: KindSingle, Fields: []FieldKey{{Key: "a", Kind: FieldString}}},
			{Name: "two", Kind: KindSingle, Fields: []FieldKey{{Key: "b", Kind: FieldString}}},
			{Name: "three", Kind: KindSingle, Fields: []FieldKey{{Key: "c", Kind: FieldString}}},
		},
		Stages: []string{"review"},
	}
}

func fillStep(t *testing.T, inst *Instance, tmpl *Template, i int, key string) {
	t.Helper()
	patch := NewPayload(KindSingle)
	patch.Fields = map[string]FieldValue{key: StringValue("x")}
	if err := inst.UpdateStep(tmpl, i, patch); err != nil {
		t.Fatal(err)
	}
}

func TestInstanceSequentialGating(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)

	fillStep(t, inst, tmpl, 1, "b")
	if _, err := inst.CompleteStep(tmpl, 1, "amy", time.Now()); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("skipping step 0: have %v, want ErrOutOfOrder", err)
	}
	if inst.Steps[1].Completed {
		t.Error("failed completion mutated step state")
	}

	if _, err := inst.CompleteStep(tmpl, 0, "amy", time.Now()); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty payload: have %v, want ErrInvalid", err)
	}

	fillStep(t, inst, tmpl, 0, "a")
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := inst.CompleteStep(tmpl, 0, "amy", now); err != nil {
		t.Fatal(err)
	}
	ss := inst.Steps[0]
	if !ss.Completed || !ss.CompletedAt.Equal(now) || ss.Operator != "amy" {
		t.Errorf("completion stamp wrong: %+v", ss)
	}

	if _, err := inst.CompleteStep(tmpl, 0, "amy", time.Now()); !errors.Is(err, ErrLocked) {
		t.Errorf("re-complete: have %v, want ErrLocked", err)
	}
	if err := inst.UpdateStep(tmpl, 0, nil); !errors.Is(err, ErrLocked) {
		t.Errorf("edit completed step: have %v, want ErrLocked", err)
	}
}

func TestInstanceAutoSubmit(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)
	keys := []string{"a", "b", "c"}
	for i := 0; i < 3; i++ {
		fillStep(t, inst, tmpl, i, keys[i])
		submitted, err := inst.CompleteStep(tmpl, i, "amy", time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if want := i == 2; submitted != want {
			t.Errorf("step %d: submitted=%v, want %v", i, submitted, want)
		}
	}
	if inst.Pipeline.Status != StatusInStage || inst.Pipeline.StageIndex != 0 {
		t.Errorf("have pipeline %s stage %d", inst.Pipeline.Status, inst.Pipeline.StageIndex)
	}
}

func TestInstanceZeroSteps(t *testing.T) {
	tmpl := &Template{Name: "test.empty", Stages: []string{"review"}}
	inst := NewInstance("A", tmpl, "store-1", nil)
	if !inst.AllStepsCompleted() {
		t.Error("zero steps should be vacuously complete")
	}
	if err := inst.Submit(); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != StatusInStage {
		t.Errorf("have status %s", inst.Pipeline.Status)
	}
}

func TestInstanceSubmitIncomplete(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)
	if err := inst.Submit(); !errors.Is(err, ErrStepsIncomplete) {
		t.Errorf("have %v, want ErrStepsIncomplete", err)
	}
}

func TestInstanceReopen(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)
	keys := []string{"a", "b", "c"}
	for i := 0; i < 3; i++ {
		fillStep(t, inst, tmpl, i, keys[i])
		if _, err := inst.CompleteStep(tmpl, i, "amy", time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if err := inst.Reopen(); !errors.Is(err, ErrNotRejected) {
		t.Errorf("reopen without rejection: have %v", err)
	}
	if err := inst.Pipeline.Reject(0, "bad photo"); err != nil {
		t.Fatal(err)
	}
	if err := inst.Reopen(); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != StatusNotSubmitted {
		t.Errorf("have pipeline status %s", inst.Pipeline.Status)
	}
	// only the last completed step unlocks; earlier steps stay frozen
	if inst.Steps[2].Completed {
		t.Error("step 2 should be unlocked")
	}
	if !inst.Steps[0].Completed || !inst.Steps[1].Completed {
		t.Error("earlier steps should remain completed")
	}
	if inst.Steps[2].Payload == nil {
		t.Error("reopen should leave step data intact")
	}
	if err := inst.UpdateStep(tmpl, 2, nil); err != nil {
		t.Errorf("unlocked step should be editable: %v", err)
	}
	// re-completing the final step resubmits the pipeline
	if submitted, err := inst.CompleteStep(tmpl, 2, "bob", time.Now()); err != nil || !submitted {
		t.Fatalf("recomplete: submitted=%v err=%v", submitted, err)
	}
}

func TestInstanceNavigation(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)

	if err := inst.JumpToStep(5); !errors.Is(err, ErrNoSuchStep) {
		t.Errorf("have %v, want ErrNoSuchStep", err)
	}
	if err := inst.JumpToStep(2); err != nil {
		t.Fatal(err)
	}
	if inst.Cursor != 2 {
		t.Errorf("have cursor %d", inst.Cursor)
	}
	inst.Next() // clamped at the end
	if inst.Cursor != 2 {
		t.Errorf("have cursor %d", inst.Cursor)
	}
	inst.Prev()
	inst.Prev()
	inst.Prev() // clamped at the start
	if inst.Cursor != 0 {
		t.Errorf("have cursor %d", inst.Cursor)
	}
	// navigation never mutates completion state
	for i := range inst.Steps {
		if inst.Steps[i].Completed {
			t.Fatalf("step %d completed by navigation", i)
		}
	}
}

func TestInstanceTemplateMismatch(t *testing.T) {
	tmpl := testTemplate()
	inst := NewInstance("A", tmpl, "store-1", nil)
	other := testTemplate()
	other.Name = "test.other"
	if err := inst.UpdateStep(other, 0, nil); !errors.Is(err, ErrTemplateMismatch) {
		t.Errorf("have %v, want ErrTemplateMismatch", err)
	}
}
