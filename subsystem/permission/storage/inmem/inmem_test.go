package inmem

import (
	"testing"

	"github.com/roomworks/roomflow/subsystem/permission/storage/test"
)

func TestInmemStorage(t *testing.T) {
	test.TestPermissionStorage(t, New())
}
