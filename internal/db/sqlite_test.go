package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		txlock bool
	}{
		{"write", ModeWrite, true},
		{"read", ModeRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN("/tmp/test.sqlite", tt.mode)

			assert.True(t, strings.HasPrefix(dsn, "/tmp/test.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.txlock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpenSQLite_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), Mode("invalid"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")

	_, err = OpenSQLite(ctx, "", ModeWrite, 0)
	require.Error(t, err)

	_, err = OpenSQLite(ctx, "/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLite_Write(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), ModeWrite, 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenPools(t *testing.T) {
	pools, err := OpenPools(context.Background(), filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { pools.Close() })

	assert.Equal(t, 1, pools.Write.Stats().MaxOpenConnections)
	assert.Equal(t, 4, pools.Read.Stats().MaxOpenConnections)

	_, err = pools.Write.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, val TEXT)")
	require.NoError(t, err)
	_, err = pools.Write.Exec("INSERT INTO test (val) VALUES ('hello')")
	require.NoError(t, err)

	var val string
	require.NoError(t, pools.Read.QueryRow("SELECT val FROM test WHERE id = 1").Scan(&val))
	assert.Equal(t, "hello", val)
}

func TestOpenPools_ConcurrentAccess(t *testing.T) {
	pools, err := OpenPools(context.Background(), filepath.Join(t.TempDir(), "test.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { pools.Close() })

	_, err = pools.Write.Exec("CREATE TABLE counter (id INTEGER PRIMARY KEY, n INTEGER)")
	require.NoError(t, err)
	_, err = pools.Write.Exec("INSERT INTO counter (id, n) VALUES (1, 0)")
	require.NoError(t, err)

	var wg sync.WaitGroup
	writeErrs := make([]error, 20)
	readErrs := make([]error, 20)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, writeErrs[i] = pools.Write.Exec("UPDATE counter SET n = n + 1 WHERE id = 1")
		}()
		go func() {
			defer wg.Done()
			var n int
			readErrs[i] = pools.Read.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n)
		}()
	}
	wg.Wait()

	for i, e := range writeErrs {
		assert.NoError(t, e, "writer %d failed", i)
	}
	for i, e := range readErrs {
		assert.NoError(t, e, "reader %d failed", i)
	}

	var n int
	require.NoError(t, pools.Read.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n))
	assert.Equal(t, 20, n)
}

func TestOpen_RunsMigrations(t *testing.T) {
	ctx := context.Background()
	pools := OpenTestSQLite(t)

	var name string
	err := pools.Read.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'failed_commands'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "failed_commands", name)

	v, err := SchemaVersion(ctx, pools.Write)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	status, err := Status(ctx, pools.Write)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.True(t, status[0].Applied)
	assert.Equal(t, int64(1), status[0].Version)

	// A second run is a no-op.
	require.NoError(t, RunMigrations(ctx, pools.Write))
}
