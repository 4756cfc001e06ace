// Package inmem implements an in-memory permission grant storage backend.
package inmem

import (
	"github.com/roomworks/roomflow/subsystem/permission/storage/kv"
	"github.com/roomworks/roomflow/utils/kv/kvmap"
)

// InMem is an in-memory permission grant storage backend.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket())}
}
