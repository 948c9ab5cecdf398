package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchwatch/pkg/logx"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		"-1001": {
			TrackedEntities: map[string]EntityState{
				"Ava#EUW": {InternalID: StrPtr("puuid-ava"), LastMatchID: StrPtr("EUW1_1")},
				"Bo#NA1":  {InternalID: StrPtr("puuid-bo")},
			},
			Destination: StrPtr("-1001:7"),
		},
		"-1002": {TrackedEntities: map[string]EntityState{}},
	}
}

// exerciseBackend checks the behavior every driver shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	empty, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, b.Save(ctx, sampleSnapshot()))
	got, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ava := got["-1001"].TrackedEntities["Ava#EUW"]
	assert.Equal(t, "puuid-ava", Str(ava.InternalID))
	assert.Equal(t, "EUW1_1", Str(ava.LastMatchID))
	assert.Nil(t, got["-1001"].TrackedEntities["Bo#NA1"].LastMatchID)
	assert.Equal(t, "-1001:7", Str(got["-1001"].Destination))
	assert.Nil(t, got["-1002"].Destination)
	assert.NotNil(t, got["-1002"].TrackedEntities)

	// Save replaces: tenants missing from the new snapshot disappear.
	require.NoError(t, b.Save(ctx, Snapshot{"-1002": {Destination: StrPtr("-1002")}}))
	got, err = b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "-1002", Str(got["-1002"].Destination))

	require.NoError(t, b.Save(ctx, Snapshot{}))
	got, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileBackend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "matchwatch_state.json")
	b, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileBackendPersistedFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"g1": {"trackedEntities": {"Ava#EUW": {"internalId": "p", "lastMatchId": null}}, "destination": null}}`), 0o600))

	b, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	snap, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p", Str(snap["g1"].TrackedEntities["Ava#EUW"].InternalID))
	assert.Nil(t, snap["g1"].Destination)
}

func TestFileBackendEmptyAndMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o600))
	b, err := Open(Config{Path: emptyPath}, logx.Nop())
	require.NoError(t, err)
	snap, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{not json"), 0o600))
	b, err = Open(Config{Path: badPath}, logx.Nop())
	require.NoError(t, err)
	_, err = b.Load(context.Background())
	require.Error(t, err)
}

func TestFileBackendClosed(t *testing.T) {
	t.Parallel()
	b, err := Open(Config{Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Save(context.Background(), Snapshot{}), ErrClosed)
}

func TestSQLiteBackend(t *testing.T) {
	t.Parallel()
	b, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "mw.db")}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestSQLiteCloseDuringSaves(t *testing.T) {
	t.Parallel()
	b, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "mw.db")}, logx.Nop())
	require.NoError(t, err)

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Save(context.Background(), sampleSnapshot())
		}()
	}
	require.NoError(t, b.Close())
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)
		}
	}
	require.ErrorIs(t, b.Save(context.Background(), Snapshot{}), ErrClosed)
	require.NoError(t, b.Close())
}

func TestRedisBackend(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	b := NewRedis(&redis.Options{Addr: mr.Addr()}, "mwtest")
	defer b.Close()
	require.NoError(t, b.Ping(context.Background()))
	exerciseBackend(t, b)

	require.NoError(t, b.Save(context.Background(), sampleSnapshot()))
	assert.True(t, mr.Exists("mwtest:tenants"))
	keys, err := mr.HKeys("mwtest:tenants")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestRedisBackendFromDSN(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	b, err := Open(Config{Driver: "redis", DSN: "redis://" + mr.Addr() + "/0"}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Save(context.Background(), sampleSnapshot()))
	keys, err := mr.HKeys(DefaultKeyPrefix + ":tenants")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("MATCHWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MATCHWATCH_TEST_POSTGRES_DSN not set")
	}
	b, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Save(context.Background(), Snapshot{}))
	exerciseBackend(t, b)
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	exerciseBackend(t, m)
	assert.Equal(t, 3, m.Saves())
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}
