package permission

import (
	"context"
	"testing"

	"github.com/roomworks/roomflow/subsystem/permission/storage"
	"github.com/roomworks/roomflow/subsystem/permission/storage/inmem"
)

func TestGate(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	gate := NewGate(store)

	// no grant denies
	if ok, err := gate.Allows(ctx, "pm", "test.install", 0); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("ungranted stage allowed")
	}

	grants := []*storage.Grant{
		{ResourceType: "test.install", Stage: 0, Roles: []string{"construction"}},
		{ResourceType: "test.install", Stage: 1, Roles: []string{Wildcard}},
	}
	for _, g := range grants {
		if err := store.StoreGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct {
		name  string
		role  string
		stage int
		want  bool
	}{
		{"granted role", "construction", 0, true},
		{"other role", "pm", 0, false},
		{"empty role", "", 0, false},
		{"wildcard any role", "intern", 1, true},
		{"wildcard empty role", "", 1, true},
		{"ungranted stage", "construction", 2, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := gate.Allows(ctx, tc.role, "test.install", tc.stage)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.want {
				t.Errorf("have %v, want %v", ok, tc.want)
			}
		})
	}
}
