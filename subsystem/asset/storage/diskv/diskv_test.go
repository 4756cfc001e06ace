package diskv

import (
	"testing"

	"github.com/roomworks/roomflow/subsystem/asset/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	test.TestAssetStorage(t, New(t.TempDir()))
}
