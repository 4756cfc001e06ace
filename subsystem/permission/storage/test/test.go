// Package test implements a storage backend test harness for permission grants.
package test

import (
	"context"
	"testing"

	"github.com/roomworks/roomflow/subsystem/permission/storage"
)

// TestPermissionStorage runs the grant storage conformance tests.
func TestPermissionStorage(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if err := s.StoreGrant(ctx, &storage.Grant{Stage: 0}); err == nil {
		t.Error("expected error for missing resource type")
	}

	roles, err := s.RetrieveRoles(ctx, "test.absent", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 0 {
		t.Errorf("have roles %v for absent grant, want none", roles)
	}

	grants := []*storage.Grant{
		{ResourceType: "test.install", Stage: 0, Roles: []string{"construction", "pm"}},
		{ResourceType: "test.install", Stage: 1, Roles: []string{"owner"}},
		{ResourceType: "test.opsstatus", Stage: 0, Roles: []string{"*"}},
	}
	for _, g := range grants {
		if err = s.StoreGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	if roles, err = s.RetrieveRoles(ctx, "test.install", 0); err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0] != "construction" || roles[1] != "pm" {
		t.Errorf("have roles %v", roles)
	}

	// replacement
	if err = s.StoreGrant(ctx, &storage.Grant{ResourceType: "test.install", Stage: 0, Roles: []string{"pm"}}); err != nil {
		t.Fatal(err)
	}
	if roles, err = s.RetrieveRoles(ctx, "test.install", 0); err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 || roles[0] != "pm" {
		t.Errorf("replacement not stored: %v", roles)
	}

	all, err := s.RetrieveGrants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(grants) {
		t.Errorf("have %d grants, want %d", len(all), len(grants))
	}

	if err = s.DeleteGrant(ctx, "test.install", 1); err != nil {
		t.Fatal(err)
	}
	if roles, err = s.RetrieveRoles(ctx, "test.install", 1); err != nil {
		t.Fatal(err)
	} else if len(roles) != 0 {
		t.Errorf("deleted grant still has roles: %v", roles)
	}
}
