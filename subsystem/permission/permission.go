// Package permission implements the role matrix backing stage review
// authorization.
package permission

import (
	"context"
	"fmt"

	"github.com/roomworks/roomflow/subsystem/permission/storage"
)

// Wildcard as a granted role allows any role.
const Wildcard = "*"

// Gate answers stage review authorization questions from the stored
// grant matrix. It implements the engine's PermissionGate.
type Gate struct {
	store storage.ReadStorage
}

func NewGate(store storage.ReadStorage) *Gate {
	return &Gate{store: store}
}

// Allows reports whether role may review resourceType at stage. No
// grant, or a grant not naming the role (or the wildcard), denies.
func (g *Gate) Allows(ctx context.Context, role, resourceType string, stage int) (bool, error) {
	roles, err := g.store.RetrieveRoles(ctx, resourceType, stage)
	if err != nil {
		return false, fmt.Errorf("retrieving roles: %w", err)
	}
	for _, r := range roles {
		if r == Wildcard || (role != "" && r == role) {
			return true, nil
		}
	}
	return false, nil
}
