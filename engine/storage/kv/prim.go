package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/utils/kv"
	"github.com/roomworks/roomflow/workflow"
)

const (
	// audit bucket
	keySfxAuditCount = ".count" // decimal count of ledger events for a unit
	keySfxAuditEvent = ".evt."  // followed by the zero-padded sequence number
)

func auditCountKey(unitRef string) string {
	return unitRef + keySfxAuditCount
}

func auditEventKey(unitRef string, seq int) string {
	return fmt.Sprintf("%s%s%08d", unitRef, keySfxAuditEvent, seq)
}

// allKeys collects the bucket's keys first so that callers can write to
// the bucket while ranging (the keys channel holds a read lock open).
func allKeys(b kv.TraversingBucket) []string {
	var keys []string
	for k := range b.Keys(nil) {
		keys = append(keys, k)
	}
	return keys
}

func kvSetInstance(ctx context.Context, b kv.Bucket, inst *workflow.Instance) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	return b.Set(ctx, inst.ID, raw)
}

func kvGetInstance(ctx context.Context, b kv.Bucket, id string) (*workflow.Instance, error) {
	if ok, err := b.Has(ctx, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: instance %s", storage.ErrNotFound, id)
	}
	raw, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	inst := new(workflow.Instance)
	if err = json.Unmarshal(raw, inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	return inst, nil
}

func kvGetAuditCount(ctx context.Context, b kv.Bucket, unitRef string) (int, error) {
	ok, err := b.Has(ctx, auditCountKey(unitRef))
	if err != nil || !ok {
		return 0, err
	}
	raw, err := b.Get(ctx, auditCountKey(unitRef))
	if err != nil {
		return 0, err
	}
	var count int
	if err = json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("unmarshal audit count: %w", err)
	}
	return count, nil
}

func kvSetAuditCount(ctx context.Context, b kv.Bucket, unitRef string, count int) error {
	raw, err := json.Marshal(count)
	if err != nil {
		return err
	}
	return b.Set(ctx, auditCountKey(unitRef), raw)
}

func kvSetAuditEvent(ctx context.Context, b kv.Bucket, unitRef string, seq int, ev *storage.AuditEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return b.Set(ctx, auditEventKey(unitRef, seq), raw)
}

func kvGetAuditEvent(ctx context.Context, b kv.Bucket, unitRef string, seq int) (*storage.AuditEvent, error) {
	raw, err := b.Get(ctx, auditEventKey(unitRef, seq))
	if err != nil {
		return nil, err
	}
	ev := new(storage.AuditEvent)
	if err = json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("unmarshal audit event: %w", err)
	}
	return ev, nil
}

func kvSetCheck(ctx context.Context, b kv.Bucket, c *storage.Check) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal check: %w", err)
	}
	return b.Set(ctx, c.ID, raw)
}

func kvGetCheck(ctx context.Context, b kv.Bucket, id string) (*storage.Check, error) {
	raw, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := new(storage.Check)
	if err = json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("unmarshal check: %w", err)
	}
	return c, nil
}
