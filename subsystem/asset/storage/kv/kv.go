// Package kv implements an asset storage backend using a key-value interface.
package kv

import (
	"context"
	"sync"

	"github.com/roomworks/roomflow/subsystem/asset/storage"
	"github.com/roomworks/roomflow/utils/kv"
	"github.com/roomworks/roomflow/utils/uuid"
	"github.com/roomworks/roomflow/workflow"
)

const (
	keySfxData = ".data" // raw asset bytes
	keySfxType = ".type" // content type
)

// KV is an asset storage backend using a key-value interface.
type KV struct {
	mu   sync.RWMutex
	b    kv.Bucket
	ider uuid.IDer
}

func New(b kv.Bucket, ider uuid.IDer) *KV {
	return &KV{b: b, ider: ider}
}

// StoreAsset implements the storage interface method.
func (s *KV) StoreAsset(ctx context.Context, a *storage.Asset) (workflow.AssetRef, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	ref := s.ider.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.b.Set(ctx, ref+keySfxData, a.Data); err != nil {
		return "", err
	}
	if err := s.b.Set(ctx, ref+keySfxType, []byte(a.ContentType)); err != nil {
		return "", err
	}
	return workflow.AssetRef(ref), nil
}

// RetrieveAsset implements the storage interface method.
func (s *KV) RetrieveAsset(ctx context.Context, ref workflow.AssetRef) (*storage.Asset, error) {
	if ref == "" {
		return nil, storage.ErrMissingRef
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, err := s.b.Has(ctx, string(ref)+keySfxData); err != nil {
		return nil, err
	} else if !found {
		return nil, storage.ErrNotFound
	}
	data, err := s.b.Get(ctx, string(ref)+keySfxData)
	if err != nil {
		return nil, err
	}
	contentType, err := s.b.Get(ctx, string(ref)+keySfxType)
	if err != nil {
		return nil, err
	}
	return &storage.Asset{ContentType: string(contentType), Data: data}, nil
}
