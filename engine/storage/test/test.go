// Package test implements a storage backend test harness for the workflow engine.
package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/workflow"
)

func testTemplate() *workflow.Template {
	return &workflow.Template{
		Name: "test.storage",
		Steps: []workflow.StepDefinition{
			{Name: "only", Kind: workflow.KindSingle, Fields: []workflow.FieldKey{{Key: "f", Kind: workflow.FieldString}}},
		},
		Stages: []string{"first", "second"},
	}
}

// TestEngineStorage runs the storage backend conformance tests.
func TestEngineStorage(t *testing.T, newStorage func() storage.AllStorage) {
	s := newStorage()
	ctx := context.Background()

	t.Run("testInstance", func(t *testing.T) {
		testInstance(t, ctx, s)
	})

	t.Run("testPending", func(t *testing.T) {
		testPending(t, ctx, s)
	})

	t.Run("testAudit", func(t *testing.T) {
		testAudit(t, ctx, s)
	})

	t.Run("testChecks", func(t *testing.T) {
		testChecks(t, ctx, newStorage())
	})
}

func testInstance(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if err := s.StoreInstance(ctx, nil); err == nil {
		t.Error("expected error storing nil instance")
	}
	if _, err := s.RetrieveInstance(ctx, "absent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("have %v, want ErrNotFound", err)
	}

	tmpl := testTemplate()
	inst := workflow.NewInstance("INST-1", tmpl, "store-1", []string{"101"})
	patch := workflow.NewPayload(workflow.KindSingle)
	patch.Fields = map[string]workflow.FieldValue{"f": workflow.StringValue("v")}
	if err := inst.UpdateStep(tmpl, 0, patch); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreInstance(ctx, inst); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveInstance(ctx, "INST-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != inst.ID || got.UnitRef != inst.UnitRef || got.TemplateName != inst.TemplateName {
		t.Errorf("instance identity mismatch: %+v", got)
	}
	if len(got.Steps) != 1 || got.Steps[0].Payload == nil {
		t.Fatalf("steps not round-tripped: %+v", got.Steps)
	}
	if got.Steps[0].Payload.Fields["f"] != workflow.StringValue("v") {
		t.Errorf("payload not round-tripped: %+v", got.Steps[0].Payload)
	}

	// replace
	if _, err = inst.CompleteStep(tmpl, 0, "amy", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err = s.StoreInstance(ctx, inst); err != nil {
		t.Fatal(err)
	}
	got, err = s.RetrieveInstance(ctx, "INST-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Steps[0].Completed || got.Steps[0].Operator != "amy" {
		t.Errorf("replacement not stored: %+v", got.Steps[0])
	}
}

func testPending(t *testing.T, ctx context.Context, s storage.AllStorage) {
	tmpl := testTemplate()

	inStage := workflow.NewInstance("PEND-1", tmpl, "store-2", nil)
	patch := workflow.NewPayload(workflow.KindSingle)
	patch.Fields = map[string]workflow.FieldValue{"f": workflow.StringValue("v")}
	if err := inStage.UpdateStep(tmpl, 0, patch); err != nil {
		t.Fatal(err)
	}
	if _, err := inStage.CompleteStep(tmpl, 0, "amy", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreInstance(ctx, inStage); err != nil {
		t.Fatal(err)
	}

	unsubmitted := workflow.NewInstance("PEND-2", tmpl, "store-3", nil)
	if err := s.StoreInstance(ctx, unsubmitted); err != nil {
		t.Fatal(err)
	}

	pending, err := s.RetrievePendingInstances(ctx, tmpl.Name)
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, p := range pending {
		found[p.ID] = true
	}
	if !found["PEND-1"] {
		t.Error("submitted instance missing from pending")
	}
	if found["PEND-2"] {
		t.Error("unsubmitted instance listed as pending")
	}

	if pending, err = s.RetrievePendingInstances(ctx, "test.no-such-template"); err != nil {
		t.Fatal(err)
	} else if len(pending) != 0 {
		t.Errorf("have %d pending for unknown template, want 0", len(pending))
	}
}

func testAudit(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if err := s.AppendAuditEvent(ctx, "", &storage.AuditEvent{Action: storage.ActionSubmit}); err == nil {
		t.Error("expected error for missing unit ref")
	}
	if err := s.AppendAuditEvent(ctx, "store-9", &storage.AuditEvent{}); err == nil {
		t.Error("expected error for missing action")
	}

	events, err := s.RetrieveAuditEvents(ctx, "store-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("have %d events for fresh unit, want 0", len(events))
	}

	appended := []storage.AuditEvent{
		{Actor: "amy", Action: storage.ActionSubmit, At: time.Now().UTC().Truncate(time.Second)},
		{Actor: "bob", Action: storage.ActionApprove, Ref: "first", At: time.Now().UTC().Truncate(time.Second)},
		{Actor: "cho", Action: storage.ActionReject, Ref: "second", Reason: "missing SN", At: time.Now().UTC().Truncate(time.Second)},
	}
	for i := range appended {
		if err = s.AppendAuditEvent(ctx, "store-9", &appended[i]); err != nil {
			t.Fatal(err)
		}
	}

	events, err = s.RetrieveAuditEvents(ctx, "store-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != len(appended) {
		t.Fatalf("have %d events, want %d", len(events), len(appended))
	}
	for i, ev := range events {
		want := appended[i]
		if ev.Actor != want.Actor || ev.Action != want.Action || ev.Ref != want.Ref || ev.Reason != want.Reason {
			t.Errorf("event %d: have %+v, want %+v", i, ev, want)
		}
	}

	// ledger for one unit does not bleed into another
	if events, err = s.RetrieveAuditEvents(ctx, "store-10"); err != nil {
		t.Fatal(err)
	} else if len(events) != 0 {
		t.Errorf("have %d events for other unit, want 0", len(events))
	}
}

func testChecks(t *testing.T, ctx context.Context, s storage.AllStorage) {
	if err := s.StoreCheck(ctx, &storage.Check{InstanceID: "X"}); err == nil {
		t.Error("expected error for missing check id")
	}

	now := time.Now()
	checks := []*storage.Check{
		{ID: "CHK-1", InstanceID: "INST-A", StepIndex: 0, Kind: "network"},
		{ID: "CHK-2", InstanceID: "INST-A", StepIndex: 1, Kind: "device-log", NotUntil: now.Add(time.Hour)},
		{ID: "CHK-3", InstanceID: "INST-B", StepIndex: 0, Kind: "network"},
	}
	for _, c := range checks {
		if err := s.StoreCheck(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.RetrieveDueChecks(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, c := range due {
		found[c.ID] = true
	}
	if !found["CHK-1"] || !found["CHK-3"] {
		t.Errorf("due checks missing: %v", found)
	}
	if found["CHK-2"] {
		t.Error("future check retrieved as due")
	}

	// retrieval claims: a second retrieval returns nothing new
	if due, err = s.RetrieveDueChecks(ctx, now); err != nil {
		t.Fatal(err)
	} else if len(due) != 0 {
		t.Errorf("have %d due checks on re-retrieve, want 0", len(due))
	}

	// cancelled checks never fire
	if err = s.CancelChecks(ctx, "INST-A", -1); err != nil {
		t.Fatal(err)
	}
	if due, err = s.RetrieveDueChecks(ctx, now.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	} else if len(due) != 0 {
		t.Errorf("cancelled check retrieved: %v", due)
	}
}
