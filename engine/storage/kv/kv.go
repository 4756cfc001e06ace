// Package kv implements a workflow engine storage backend using a key-value interface.
package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/utils/kv"
	"github.com/roomworks/roomflow/workflow"
)

// KV is a workflow engine storage backend using a key-value interface.
type KV struct {
	mu         sync.RWMutex
	instStore  kv.TraversingBucket
	auditStore kv.TraversingBucket
	checkStore kv.TraversingBucket
}

// New creates a new key-value workflow engine storage backend.
func New(instStore, auditStore, checkStore kv.TraversingBucket) *KV {
	return &KV{
		instStore:  instStore,
		auditStore: auditStore,
		checkStore: checkStore,
	}
}

// StoreInstance implements the storage interface method.
func (s *KV) StoreInstance(ctx context.Context, inst *workflow.Instance) error {
	if inst == nil {
		return storage.ErrEmptyInstance
	}
	if inst.ID == "" {
		return storage.ErrMissingInstanceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return kvSetInstance(ctx, s.instStore, inst)
}

// RetrieveInstance implements the storage interface method.
func (s *KV) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	if id == "" {
		return nil, storage.ErrMissingInstanceID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return kvGetInstance(ctx, s.instStore, id)
}

// RetrievePendingInstances implements the storage interface method.
func (s *KV) RetrievePendingInstances(ctx context.Context, templateName string) ([]*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []*workflow.Instance
	for _, id := range allKeys(s.instStore) {
		inst, err := kvGetInstance(ctx, s.instStore, id)
		if err != nil {
			return pending, fmt.Errorf("getting instance %s: %w", id, err)
		}
		if inst.Pipeline.Status != workflow.StatusInStage {
			continue
		}
		if templateName != "" && inst.TemplateName != templateName {
			continue
		}
		pending = append(pending, inst)
	}
	return pending, nil
}

// AppendAuditEvent implements the storage interface method.
func (s *KV) AppendAuditEvent(ctx context.Context, unitRef string, ev *storage.AuditEvent) error {
	if unitRef == "" {
		return storage.ErrMissingUnitRef
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("validating audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := kvGetAuditCount(ctx, s.auditStore, unitRef)
	if err != nil {
		return fmt.Errorf("getting audit count for %s: %w", unitRef, err)
	}
	if err = kvSetAuditEvent(ctx, s.auditStore, unitRef, seq, ev); err != nil {
		return fmt.Errorf("setting audit event %d for %s: %w", seq, unitRef, err)
	}
	if err = kvSetAuditCount(ctx, s.auditStore, unitRef, seq+1); err != nil {
		return fmt.Errorf("setting audit count for %s: %w", unitRef, err)
	}
	return nil
}

// RetrieveAuditEvents implements the storage interface method.
func (s *KV) RetrieveAuditEvents(ctx context.Context, unitRef string) ([]storage.AuditEvent, error) {
	if unitRef == "" {
		return nil, storage.ErrMissingUnitRef
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, err := kvGetAuditCount(ctx, s.auditStore, unitRef)
	if err != nil {
		return nil, fmt.Errorf("getting audit count for %s: %w", unitRef, err)
	}
	events := make([]storage.AuditEvent, 0, count)
	for seq := 0; seq < count; seq++ {
		ev, err := kvGetAuditEvent(ctx, s.auditStore, unitRef, seq)
		if err != nil {
			return events, fmt.Errorf("getting audit event %d for %s: %w", seq, unitRef, err)
		}
		events = append(events, *ev)
	}
	return events, nil
}

// StoreCheck implements the storage interface method.
func (s *KV) StoreCheck(ctx context.Context, c *storage.Check) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return kvSetCheck(ctx, s.checkStore, c)
}

// RetrieveDueChecks implements the storage interface method.
// Retrieved checks are deleted (permanently claimed).
func (s *KV) RetrieveDueChecks(ctx context.Context, now time.Time) ([]*storage.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*storage.Check
	for _, id := range allKeys(s.checkStore) {
		c, err := kvGetCheck(ctx, s.checkStore, id)
		if err != nil {
			return due, fmt.Errorf("getting check %s: %w", id, err)
		}
		if c.NotUntil.After(now) {
			continue
		}
		if err = s.checkStore.Delete(ctx, id); err != nil {
			return due, fmt.Errorf("claiming check %s: %w", id, err)
		}
		due = append(due, c)
	}
	return due, nil
}

// CancelChecks implements the storage interface method.
func (s *KV) CancelChecks(ctx context.Context, instanceID string, stepIndex int) error {
	if instanceID == "" {
		return storage.ErrMissingInstanceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range allKeys(s.checkStore) {
		c, err := kvGetCheck(ctx, s.checkStore, id)
		if err != nil {
			return fmt.Errorf("getting check %s: %w", id, err)
		}
		if c.InstanceID != instanceID {
			continue
		}
		if stepIndex >= 0 && c.StepIndex != stepIndex {
			continue
		}
		if err = s.checkStore.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting check %s: %w", id, err)
		}
	}
	return nil
}
