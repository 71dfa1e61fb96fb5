package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/amm-pool-engine/pool"
	"github.com/defistate/amm-pool-engine/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetX = common.HexToAddress("0x1000000000000000000000000000000000000001")
	assetY = common.HexToAddress("0x2000000000000000000000000000000000000002")
	assetZ = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRegistry(t *testing.T, journal registry.Journal, pools []pool.Pool) *registry.Registry {
	t.Helper()
	r, err := registry.NewFromSnapshot(&registry.Config{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Journal:  journal,
	}, pools)
	require.NoError(t, err)
	return r
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.EqualError(t, err, "store: path is required")
}

func TestRecordAndLoad(t *testing.T) {
	s := openInMemory(t)

	empty, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	r := newRegistry(t, s, nil)
	id, _, err := r.CreatePool(assetX, assetY, u(1_000_000_000), u(1_000_000_000), 30)
	require.NoError(t, err)
	_, _, err = r.CreatePool(assetZ, assetY, u(500), u(800), 100)
	require.NoError(t, err)
	_, err = r.Swap(id, pool.XToY, u(100_000_000), nil)
	require.NoError(t, err)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, r.Pools(), loaded)

	p, found, err := s.Pool(id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(909_338_911), p.ReserveY.Uint64())

	_, found, err = s.Pool(pool.NewID(assetY, assetZ))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRestoreAfterReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Path: dir})
	require.NoError(t, err)
	r := newRegistry(t, s, nil)
	id, shares, err := r.CreatePool(assetX, assetY, u(4_000), u(9_000), 30)
	require.NoError(t, err)
	_, err = r.RemoveLiquidity(id, shares, nil, nil)
	require.NoError(t, err)
	want := r.Pools()
	require.NoError(t, s.Close())

	reopened, err := Open(Options{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].IsDrained(), "drained pools are persisted, not deleted")

	restored := newRegistry(t, nil, loaded)
	assert.Equal(t, want, restored.Pools())
}

func TestRestoreEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := []byte("0123456789abcdef0123456789abcdef")

	s, err := Open(Options{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	r := newRegistry(t, s, nil)
	_, _, err = r.CreatePool(assetX, assetY, u(4_000), u(9_000), 30)
	require.NoError(t, err)
	want := r.Pools()
	require.NoError(t, s.Close())

	_, err = Open(Options{Path: dir, EncryptionKey: []byte("fedcba9876543210fedcba9876543210")})
	assert.Error(t, err, "a different key must not open the store")

	reopened, err := Open(Options{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, want, loaded)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.ErrorIs(t, s.Record(pool.SystemDiff{Updates: []pool.Pool{{}}}), ErrNotOpened)

	var nilStore *Store
	assert.NoError(t, nilStore.Close())
}
