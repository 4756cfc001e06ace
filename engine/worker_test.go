package engine

import (
	"context"
	"testing"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/workflow"
)

func TestWorker(t *testing.T) {
	ctx := context.Background()
	tmpl := &workflow.Template{
		Name: "test.remote",
		Steps: []workflow.StepDefinition{
			{Name: "capture", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				{Key: "log_captured", Kind: workflow.FieldBool},
			}},
		},
		Stages: []string{"review"},
	}
	e, store := newTestEngine(t, allowAll, tmpl)

	inst, err := e.StartInstance(ctx, tmpl.Name, "store-w", nil, "amy")
	if err != nil {
		t.Fatal(err)
	}

	checker := CheckerFunc(func(_ context.Context, c *storage.Check) (*workflow.Payload, error) {
		if c.Kind != "device-log" {
			return nil, nil
		}
		return fieldPatch(workflow.KindChecklist, "log_captured", workflow.BoolValue(true)), nil
	})
	w := NewWorker(e, store, checker)

	if _, err = e.ScheduleCheck(ctx, inst.ID, 0, "device-log", time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err = w.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	missing, err := e.ValidateStep(ctx, inst.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Fatalf("check result not applied, still missing: %v", missing)
	}

	// a claimed check does not fire twice
	if err = w.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// a cancelled check never fires
	inst2, err := e.StartInstance(ctx, tmpl.Name, "store-w2", nil, "amy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err = e.ScheduleCheck(ctx, inst2.ID, 0, "device-log", time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err = e.CancelChecks(ctx, inst2.ID, -1); err != nil {
		t.Fatal(err)
	}
	if err = w.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if missing, err = e.ValidateStep(ctx, inst2.ID, 0); err != nil {
		t.Fatal(err)
	} else if len(missing) != 1 {
		t.Fatalf("cancelled check fired: missing %v", missing)
	}
}
