package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	d, err := OpenInMemory()
	require.NoError(t, err)
	defer d.Close()

	var n int
	require.NoError(t, d.SQL().QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name IN ('forms','submissions','sync_logs','indicators')").Scan(&n))
	assert.Equal(t, 4, n)
	assert.NoError(t, d.Compact(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "kobodash.db")

	d, err := Open(path)
	require.NoError(t, err)
	_, err = d.SQL().Exec("INSERT INTO forms (uid, slug, created_at, updated_at) VALUES ('f1', 'f1', 'now', 'now')")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()

	var version int
	require.NoError(t, d.SQL().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	var uid string
	require.NoError(t, d.SQL().QueryRow("SELECT uid FROM forms").Scan(&uid))
	assert.Equal(t, "f1", uid)
}

func TestOpen_UpgradesVersionOneDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kobodash.db")

	d, err := Open(path)
	require.NoError(t, err)
	_, err = d.SQL().Exec("DROP TABLE indicators; PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()

	var n int
	require.NoError(t, d.SQL().QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name = 'indicators'").Scan(&n))
	assert.Equal(t, 1, n)
}
