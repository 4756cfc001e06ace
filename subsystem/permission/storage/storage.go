// Package storage defines types and primitives for permission grant storage.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no grant exists for a resource type and stage.
	ErrNotFound = errors.New("grant not found")

	ErrEmptyGrant          = errors.New("empty grant")
	ErrMissingResourceType = errors.New("missing resource type")
	ErrInvalidStage        = errors.New("invalid stage")
)

// Grant names the roles allowed to review one stage of one resource
// type (a template name). A role of "*" allows any role.
type Grant struct {
	ResourceType string   `json:"resource_type"`
	Stage        int      `json:"stage"`
	Roles        []string `json:"roles"`
}

// Validate checks for missing values.
func (g *Grant) Validate() error {
	if g == nil {
		return ErrEmptyGrant
	}
	if g.ResourceType == "" {
		return ErrMissingResourceType
	}
	if g.Stage < 0 {
		return ErrInvalidStage
	}
	return nil
}

type ReadStorage interface {
	// RetrieveRoles returns the roles granted for resourceType at stage.
	// A missing grant is not an error: the return is empty.
	RetrieveRoles(ctx context.Context, resourceType string, stage int) ([]string, error)

	// RetrieveGrants returns every stored grant.
	RetrieveGrants(ctx context.Context) ([]Grant, error)
}

// Storage is the primary interface for permission grant storage backends.
type Storage interface {
	ReadStorage

	// StoreGrant stores g, replacing any grant for the same resource
	// type and stage.
	StoreGrant(ctx context.Context, g *Grant) error

	// DeleteGrant removes the grant for resourceType at stage.
	DeleteGrant(ctx context.Context, resourceType string, stage int) error
}
