// Package inmem implements an in-memory workflow engine storage backend.
package inmem

import (
	"github.com/roomworks/roomflow/engine/storage/kv"
	"github.com/roomworks/roomflow/utils/kv/kvmap"
)

// InMem is an in-memory workflow engine storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory workflow engine storage backend.
func New() *InMem {
	return &InMem{KV: kv.New(
		kvmap.NewBucket(),
		kvmap.NewBucket(),
		kvmap.NewBucket(),
	)}
}
