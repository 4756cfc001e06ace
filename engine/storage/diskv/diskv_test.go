package diskv

import (
	"testing"

	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/engine/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	test.TestEngineStorage(t, func() storage.AllStorage { return New(t.TempDir()) })
}
