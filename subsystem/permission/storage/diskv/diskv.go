// Package diskv implements a permission grant storage backend using the diskv key-value store.
package diskv

import (
	"path/filepath"

	"github.com/roomworks/roomflow/subsystem/permission/storage/kv"
	"github.com/roomworks/roomflow/utils/kv/kvdiskv"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv is a diskv-backed permission grant storage backend.
type Diskv struct {
	*kv.KV
}

func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{KV: kv.New(kvdiskv.NewBucket(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "permission"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})))}
}
