package configcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wafgateway/internal/core"
	"wafgateway/internal/kv"
)

type fakeFetcher struct {
	calls int
	cfg   *core.TenantConfig
	err   error
}

func (f *fakeFetcher) GetTenantConfig(_ context.Context, _ string) (*core.TenantConfig, error) {
	f.calls++
	return f.cfg, f.err
}

func noopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestCache_MissThenHitUsesCachedSnapshot(t *testing.T) {
	store := kv.NewMemoryStore()
	fetcher := &fakeFetcher{cfg: &core.TenantConfig{TenantID: "t1", Host: "demo.local"}}
	c := New(store, fetcher, 300*time.Second, noopLogger())

	got, err := c.Get(context.Background(), "Demo.Local:443")
	require.NoError(t, err)
	require.Equal(t, "t1", got.TenantID)
	require.Equal(t, 1, fetcher.calls)

	got2, err := c.Get(context.Background(), "demo.local")
	require.NoError(t, err)
	require.Equal(t, got.TenantID, got2.TenantID)
	require.Equal(t, 1, fetcher.calls, "second call should be served from the KV cache")
}

func TestCache_NotConfiguredIsNegativelyCached(t *testing.T) {
	store := kv.NewMemoryStore()
	fetcher := &fakeFetcher{err: core.ErrNotConfigured}
	c := New(store, fetcher, 300*time.Second, noopLogger())

	_, err := c.Get(context.Background(), "unknown.local")
	require.ErrorIs(t, err, core.ErrNotConfigured)

	_, err = c.Get(context.Background(), "unknown.local")
	require.ErrorIs(t, err, core.ErrNotConfigured)
	require.Equal(t, 1, fetcher.calls, "negative result should be cached too")
}

func TestCache_TransientErrorDoesNotPoisonCache(t *testing.T) {
	store := kv.NewMemoryStore()
	fetcher := &fakeFetcher{err: errors.New("connect timeout")}
	c := New(store, fetcher, 300*time.Second, noopLogger())

	_, err := c.Get(context.Background(), "flaky.local")
	require.Error(t, err)

	fetcher.err = nil
	fetcher.cfg = &core.TenantConfig{TenantID: "t2", Host: "flaky.local"}
	got, err := c.Get(context.Background(), "flaky.local")
	require.NoError(t, err)
	require.Equal(t, "t2", got.TenantID)
	require.Equal(t, 2, fetcher.calls)
}

func TestCache_CorruptEntryIsDeletedAndTreatedAsMiss(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.SetEX(context.Background(), cacheKey("broken.local"), "{not json", time.Minute))

	fetcher := &fakeFetcher{cfg: &core.TenantConfig{TenantID: "t3", Host: "broken.local"}}
	c := New(store, fetcher, 300*time.Second, noopLogger())

	got, err := c.Get(context.Background(), "broken.local")
	require.NoError(t, err)
	require.Equal(t, "t3", got.TenantID)
	require.Equal(t, 1, fetcher.calls)
}
