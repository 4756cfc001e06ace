package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/engine/storage/inmem"
	"github.com/roomworks/roomflow/workflow"
)

type gateFunc func(ctx context.Context, role, resourceType string, stage int) (bool, error)

func (f gateFunc) Allows(ctx context.Context, role, resourceType string, stage int) (bool, error) {
	return f(ctx, role, resourceType, stage)
}

var allowAll = gateFunc(func(_ context.Context, _, _ string, _ int) (bool, error) {
	return true, nil
})

var denyAll = gateFunc(func(_ context.Context, _, _ string, _ int) (bool, error) {
	return false, nil
})

func installTemplate() *workflow.Template {
	return &workflow.Template{
		Name: "test.install",
		Steps: []workflow.StepDefinition{
			{Name: "site survey", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				{Key: "floor_plan", Kind: workflow.FieldString},
			}},
			{Name: "network config", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				{Key: "ssid", Kind: workflow.FieldString},
				{Key: "network_verified", Kind: workflow.FieldBool},
			}},
			{Name: "room prep", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				{Key: "power_ok", Kind: workflow.FieldBool},
			}},
			{Name: "device install", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "gateway", Params: []workflow.FieldKey{{Key: "sn", Kind: workflow.FieldString}}},
				{Name: "terminal"},
			}},
			{Name: "commissioning", Kind: workflow.KindPerSubUnit, Categories: []workflow.Category{
				{Name: "gateway"},
			}},
			{Name: "acceptance", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				{Key: "sign_off", Kind: workflow.FieldString},
			}},
		},
		Stages: []string{"construction lead", "project supervisor"},
	}
}

func fieldPatch(kind workflow.DataKind, key string, v workflow.FieldValue) *workflow.Payload {
	p := workflow.NewPayload(kind)
	p.Fields = map[string]workflow.FieldValue{key: v}
	return p
}

func subUnitPatch(su, cat string, media []workflow.AssetRef, params map[string]workflow.FieldValue) *workflow.Payload {
	p := workflow.NewPayload(workflow.KindPerSubUnit)
	p.SubUnits = map[string]*workflow.SubUnitRecord{
		su: {PerCategory: map[string]*workflow.CategoryData{
			cat: {Media: media, Params: params},
		}},
	}
	return p
}

func newTestEngine(t *testing.T, gate PermissionGate, tmpls ...*workflow.Template) (*Engine, *inmem.InMem) {
	store := inmem.New()
	e := New(store, gate, WithCheckStorage(store))
	for _, tmpl := range tmpls {
		if err := e.RegisterTemplate(tmpl); err != nil {
			t.Fatal(err)
		}
	}
	return e, store
}

func TestInstallLifecycle(t *testing.T) {
	ctx := context.Background()
	tmpl := installTemplate()
	e, _ := newTestEngine(t, allowAll, tmpl)

	inst, err := e.StartInstance(ctx, tmpl.Name, "store-77", []string{"101"}, "amy")
	if err != nil {
		t.Fatal(err)
	}
	id := inst.ID

	// out-of-order completion is refused before any data exists
	if err = e.CompleteStep(ctx, id, 3, "amy"); !errors.Is(err, workflow.ErrOutOfOrder) {
		t.Fatalf("have %v, want ErrOutOfOrder", err)
	}

	steps := []*workflow.Payload{
		fieldPatch(workflow.KindSingle, "floor_plan", workflow.StringValue("asset:plan")),
		nil, // network config: two fields, patched below
		fieldPatch(workflow.KindChecklist, "power_ok", workflow.BoolValue(false)),
	}
	for i, patch := range steps {
		if patch != nil {
			if err = e.UpdateStep(ctx, id, i, patch); err != nil {
				t.Fatal(err)
			}
		}
		if i == 1 {
			if err = e.UpdateStep(ctx, id, 1, fieldPatch(workflow.KindChecklist, "ssid", workflow.StringValue("hotel-iot"))); err != nil {
				t.Fatal(err)
			}
			// explicitly false still counts as filled
			if err = e.UpdateStep(ctx, id, 1, fieldPatch(workflow.KindChecklist, "network_verified", workflow.BoolValue(false))); err != nil {
				t.Fatal(err)
			}
		}
		if err = e.CompleteStep(ctx, id, i, "amy"); err != nil {
			t.Fatalf("completing step %d: %v", i, err)
		}
	}

	// device install: gateway complete, terminal image still missing
	if err = e.UpdateStep(ctx, id, 3, subUnitPatch("101", "gateway",
		[]workflow.AssetRef{"asset:gw.jpg"},
		map[string]workflow.FieldValue{"sn": workflow.StringValue("SN-0042")},
	)); err != nil {
		t.Fatal(err)
	}
	missing, err := e.ValidateStep(ctx, id, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0] != "101/terminal/media" {
		t.Fatalf("have missing %v, want [101/terminal/media]", missing)
	}
	if err = e.CompleteStep(ctx, id, 3, "amy"); !errors.Is(err, workflow.ErrInvalid) {
		t.Fatalf("have %v, want ErrInvalid", err)
	}

	// uploading the last image flips the step to completable
	if err = e.UpdateStep(ctx, id, 3, subUnitPatch("101", "terminal",
		[]workflow.AssetRef{"asset:term.jpg"}, nil,
	)); err != nil {
		t.Fatal(err)
	}
	if missing, err = e.ValidateStep(ctx, id, 3); err != nil {
		t.Fatal(err)
	} else if len(missing) != 0 {
		t.Fatalf("still missing: %v", missing)
	}
	if err = e.CompleteStep(ctx, id, 3, "amy"); err != nil {
		t.Fatal(err)
	}

	if err = e.UpdateStep(ctx, id, 4, subUnitPatch("101", "gateway",
		[]workflow.AssetRef{"asset:online.png"}, nil,
	)); err != nil {
		t.Fatal(err)
	}
	if err = e.CompleteStep(ctx, id, 4, "amy"); err != nil {
		t.Fatal(err)
	}
	if err = e.UpdateStep(ctx, id, 5, fieldPatch(workflow.KindSingle, "sign_off", workflow.StringValue("asset:signed.pdf"))); err != nil {
		t.Fatal(err)
	}

	// completing the final step submits the pipeline
	if err = e.CompleteStep(ctx, id, 5, "amy"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, id); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != workflow.StatusInStage || inst.Pipeline.StageIndex != 0 {
		t.Fatalf("pipeline not submitted: %+v", inst.Pipeline)
	}

	// first stage approves, second rejects
	if err = e.Approve(ctx, id, 0, "bob", "construction"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, id); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.StageIndex != 1 || inst.Pipeline.Status != workflow.StatusInStage {
		t.Fatalf("pipeline not advanced: %+v", inst.Pipeline)
	}

	// no silent reject
	if err = e.Reject(ctx, id, 1, "cho", "supervisor", ""); !errors.Is(err, workflow.ErrMissingReason) {
		t.Fatalf("have %v, want ErrMissingReason", err)
	}

	payloadsBefore, err := json.Marshal(inst.Steps)
	if err != nil {
		t.Fatal(err)
	}

	if err = e.Reject(ctx, id, 1, "cho", "supervisor", "missing SN"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, id); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != workflow.StatusRejected || inst.Pipeline.RejectReason != "missing SN" {
		t.Fatalf("not rejected: %+v", inst.Pipeline)
	}

	// resubmission restarts review at the first stage with identical data
	if err = e.Resubmit(ctx, id, "amy"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, id); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != workflow.StatusInStage || inst.Pipeline.StageIndex != 0 {
		t.Fatalf("not back in first stage: %+v", inst.Pipeline)
	}
	payloadsAfter, err := json.Marshal(inst.Steps)
	if err != nil {
		t.Fatal(err)
	}
	if string(payloadsBefore) != string(payloadsAfter) {
		t.Errorf("step data changed across reject/resubmit:\nbefore: %s\nafter:  %s", payloadsBefore, payloadsAfter)
	}

	if err = e.Approve(ctx, id, 0, "bob", "construction"); err != nil {
		t.Fatal(err)
	}
	if err = e.Approve(ctx, id, 1, "cho", "supervisor"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, id); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != workflow.StatusApproved {
		t.Fatalf("not approved: %+v", inst.Pipeline)
	}

	// approved pipelines are immutable
	if err = e.Approve(ctx, id, 1, "cho", "supervisor"); !errors.Is(err, workflow.ErrOutOfOrder) {
		t.Fatalf("have %v, want ErrOutOfOrder", err)
	}
}

func TestSingleStage(t *testing.T) {
	ctx := context.Background()
	tmpl := &workflow.Template{
		Name: "test.opsstatus",
		Steps: []workflow.StepDefinition{
			{Name: "confirm", Kind: workflow.KindChecklist, Fields: []workflow.FieldKey{
				{Key: "devices_paused", Kind: workflow.FieldBool},
			}},
		},
		Stages: []string{"ops"},
	}
	e, _ := newTestEngine(t, allowAll, tmpl)

	inst, err := e.StartInstance(ctx, tmpl.Name, "store-5", nil, "amy")
	if err != nil {
		t.Fatal(err)
	}
	if err = e.UpdateStep(ctx, inst.ID, 0, fieldPatch(workflow.KindChecklist, "devices_paused", workflow.BoolValue(true))); err != nil {
		t.Fatal(err)
	}
	if err = e.CompleteStep(ctx, inst.ID, 0, "amy"); err != nil {
		t.Fatal(err)
	}
	if err = e.Approve(ctx, inst.ID, 0, "bob", "ops"); err != nil {
		t.Fatal(err)
	}
	if inst, err = e.Instance(ctx, inst.ID); err != nil {
		t.Fatal(err)
	}
	if inst.Pipeline.Status != workflow.StatusApproved {
		t.Fatalf("single-stage approval did not finalize: %+v", inst.Pipeline)
	}
}

func TestForbidden(t *testing.T) {
	ctx := context.Background()
	tmpl := installTemplate()
	e, store := newTestEngine(t, denyAll, tmpl)

	inst := workflow.NewInstance("INST-F", tmpl, "store-8", []string{"101"})
	inst.Pipeline.Status = workflow.StatusInStage
	if err := store.StoreInstance(ctx, inst); err != nil {
		t.Fatal(err)
	}

	if err := e.Approve(ctx, "INST-F", 0, "eve", "intern"); !errors.Is(err, workflow.ErrForbidden) {
		t.Fatalf("have %v, want ErrForbidden", err)
	}
	if err := e.Reject(ctx, "INST-F", 0, "eve", "intern", "nope"); !errors.Is(err, workflow.ErrForbidden) {
		t.Fatalf("have %v, want ErrForbidden", err)
	}

	got, err := e.Instance(ctx, "INST-F")
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline.StageIndex != 0 || got.Pipeline.Status != workflow.StatusInStage {
		t.Errorf("denied action mutated pipeline: %+v", got.Pipeline)
	}

	// a nil gate denies everything
	eNil := New(store, nil)
	if err := eNil.RegisterTemplate(tmpl); err != nil {
		t.Fatal(err)
	}
	if err := eNil.Approve(ctx, "INST-F", 0, "eve", "admin"); !errors.Is(err, workflow.ErrForbidden) {
		t.Fatalf("have %v, want ErrForbidden for nil gate", err)
	}
}

func TestAuditLedger(t *testing.T) {
	ctx := context.Background()
	tmpl := &workflow.Template{
		Name: "test.audit",
		Steps: []workflow.StepDefinition{
			{Name: "only", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{
				{Key: "f", Kind: workflow.FieldString},
			}},
		},
		Stages: []string{"review"},
	}
	e, _ := newTestEngine(t, allowAll, tmpl)

	inst, err := e.StartInstance(ctx, tmpl.Name, "store-audit", nil, "amy")
	if err != nil {
		t.Fatal(err)
	}
	if err = e.UpdateStep(ctx, inst.ID, 0, fieldPatch(workflow.KindSingle, "f", workflow.StringValue("v"))); err != nil {
		t.Fatal(err)
	}
	if err = e.CompleteStep(ctx, inst.ID, 0, "amy"); err != nil {
		t.Fatal(err)
	}
	if err = e.Reject(ctx, inst.ID, 0, "bob", "review", "redo"); err != nil {
		t.Fatal(err)
	}
	if err = e.Reopen(ctx, inst.ID, "amy"); err != nil {
		t.Fatal(err)
	}

	events, err := e.AuditEvents(ctx, "store-audit")
	if err != nil {
		t.Fatal(err)
	}
	want := []storage.AuditAction{
		storage.ActionStart,
		storage.ActionComplete,
		storage.ActionSubmit,
		storage.ActionReject,
		storage.ActionReopen,
	}
	if len(events) != len(want) {
		t.Fatalf("have %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev.Action != want[i] {
			t.Errorf("event %d: have %s, want %s", i, ev.Action, want[i])
		}
	}
	if events[3].Reason != "redo" {
		t.Errorf("reject event reason: %+v", events[3])
	}

	// reopening unlocked the step; recompleting resubmits
	if err = e.CompleteStep(ctx, inst.ID, 0, "amy"); err != nil {
		t.Fatal(err)
	}
	got, err := e.Instance(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline.Status != workflow.StatusInStage {
		t.Fatalf("recompletion did not resubmit: %+v", got.Pipeline)
	}
}
