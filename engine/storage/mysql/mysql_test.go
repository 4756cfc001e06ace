package mysql

import (
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/roomworks/roomflow/engine/storage"
	"github.com/roomworks/roomflow/engine/storage/test"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("ROOMFLOW_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("ROOMFLOW_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	test.TestEngineStorage(t, func() storage.AllStorage { return s })
}
