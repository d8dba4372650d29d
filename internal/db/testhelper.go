package db

import (
	"context"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens migrated write and read pools in t.TempDir() and
// registers cleanup.
func OpenTestSQLite(t *testing.T) *Pools {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	pools, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = pools.Close() })
	return pools
}
