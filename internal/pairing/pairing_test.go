package pairing_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) pairing.Store {
	t.Helper()
	store, err := pairing.NewStore(pairing.Config{DBPath: path, Enabled: true}, logger.Nop())
	require.NoError(t, err)
	return store
}

func TestRememberLookupForget(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "pairing.db"))
	defer store.Close()

	_, found, err := store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Remember(ctx, "bike_power", 12))
	n, found, err := store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 12, n)

	// Last resolved number wins.
	require.NoError(t, store.Remember(ctx, "bike_power", 4711))
	n, _, err = store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.Equal(t, 4711, n)

	require.NoError(t, store.Forget(ctx, "bike_power"))
	_, found, err = store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPairingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pairing.db")

	store := openStore(t, path)
	require.NoError(t, store.Remember(ctx, "bike_power", 12))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	store = openStore(t, path)
	defer store.Close()

	n, found, err := store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 12, n)
}

func TestRememberRejectsInvalidPairing(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "pairing.db"))
	defer store.Close()

	for _, n := range []int{0, -1, 65536} {
		err := store.Remember(ctx, "bike_power", n)
		assert.True(t, errors.HasCode(err, pairing.ErrInvalidPairing), "device number %d", n)
	}
	assert.True(t, errors.HasCode(store.Remember(ctx, "", 12), pairing.ErrInvalidPairing))
}

func TestCancelledContext(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "pairing.db"))
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Remember(ctx, "bike_power", 12)
	assert.True(t, errors.HasCode(err, pairing.ErrOperationTimeout))
	_, _, err = store.Lookup(ctx, "bike_power")
	assert.True(t, errors.HasCode(err, pairing.ErrOperationTimeout))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairing.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));
		CREATE TABLE pairings (device_class TEXT PRIMARY KEY, device_number INTEGER);
		INSERT INTO pairings VALUES ('bike_power', 7);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store := openStore(t, path)
	defer store.Close()

	_, found, err := store.Lookup(context.Background(), "bike_power")
	require.NoError(t, err)
	assert.False(t, found, "old rows are dropped with the old schema")

	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "pairing_v99_")
}

func TestDisabledStoreRemembersNothing(t *testing.T) {
	ctx := context.Background()
	store, err := pairing.NewStore(pairing.Config{Enabled: false}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Remember(ctx, "bike_power", 12))
	_, found, err := store.Lookup(ctx, "bike_power")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.Forget(ctx, "bike_power"))
	assert.NoError(t, store.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, pairing.DefaultConfig().Validate())
	assert.NoError(t, pairing.Config{}.Validate())

	err := pairing.Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, pairing.ErrInvalidDBPath))

	_, err = pairing.NewStore(pairing.Config{Enabled: true}, nil)
	assert.True(t, errors.HasCode(err, pairing.ErrInvalidConfig))
}
