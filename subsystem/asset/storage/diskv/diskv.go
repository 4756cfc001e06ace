// Package diskv implements an asset storage backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	"github.com/roomworks/roomflow/subsystem/asset/storage/kv"
	"github.com/roomworks/roomflow/utils/kv/kvdiskv"
	"github.com/roomworks/roomflow/utils/uuid"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a diskv-backed asset storage backend (the blob store).
type Diskv struct {
	*kv.KV
}

func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{KV: kv.New(kvdiskv.NewBucket(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "asset"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})), uuid.NewUUID())}
}
