package diskv

import (
	"testing"

	"github.com/roomworks/roomflow/subsystem/permission/storage/test"
)

func TestDiskvStorage(t *testing.T) {
	test.TestPermissionStorage(t, New(t.TempDir()))
}
