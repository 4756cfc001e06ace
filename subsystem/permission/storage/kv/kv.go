// Package kv implements a permission grant storage backend using JSON with key-value storage.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/roomworks/roomflow/subsystem/permission/storage"
	"github.com/roomworks/roomflow/utils/kv"
)

// KV is a permission grant storage backend using JSON with key-value storage.
type KV struct {
	mu sync.RWMutex
	b  kv.TraversingBucket
}

func New(b kv.TraversingBucket) *KV {
	return &KV{b: b}
}

func grantKey(resourceType string, stage int) string {
	return resourceType + "@" + strconv.Itoa(stage)
}

// RetrieveRoles implements the storage interface method.
func (s *KV) RetrieveRoles(ctx context.Context, resourceType string, stage int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := grantKey(resourceType, stage)
	if found, err := s.b.Has(ctx, k); err != nil {
		return nil, err
	} else if !found {
		return nil, nil
	}
	raw, err := s.b.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	g := new(storage.Grant)
	if err = json.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("unmarshal grant %s: %w", k, err)
	}
	return g.Roles, nil
}

// RetrieveGrants implements the storage interface method.
func (s *KV) RetrieveGrants(ctx context.Context) ([]storage.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.b.Keys(nil) {
		keys = append(keys, k)
	}
	grants := []storage.Grant{}
	for _, k := range keys {
		raw, err := s.b.Get(ctx, k)
		if err != nil {
			return grants, err
		}
		var g storage.Grant
		if err = json.Unmarshal(raw, &g); err != nil {
			return grants, fmt.Errorf("unmarshal grant %s: %w", k, err)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// StoreGrant implements the storage interface method.
func (s *KV) StoreGrant(ctx context.Context, g *storage.Grant) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validating grant: %w", err)
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Set(ctx, grantKey(g.ResourceType, g.Stage), raw)
}

// DeleteGrant implements the storage interface method.
func (s *KV) DeleteGrant(ctx context.Context, resourceType string, stage int) error {
	if resourceType == "" {
		return storage.ErrMissingResourceType
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Delete(ctx, grantKey(resourceType, stage))
}
