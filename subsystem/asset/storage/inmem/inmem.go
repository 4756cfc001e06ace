// Package inmem implements an in-memory asset storage backend.
package inmem

import (
	"github.com/roomworks/roomflow/subsystem/asset/storage/kv"
	"github.com/roomworks/roomflow/utils/kv/kvmap"
	"github.com/roomworks/roomflow/utils/uuid"
)

// InMem is an in-memory asset storage backend.
type InMem struct {
	*kv.KV
}

func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket(), uuid.NewUUID())}
}
