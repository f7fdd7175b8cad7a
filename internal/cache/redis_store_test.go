package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisStoreRoundTripKeepsEnvelope(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	cachedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := &Metadata{CachedAt: cachedAt, Operation: OpSummaryMetrics, OrganizationID: "org-1", TTL: 300}
	value := map[string]any{"leads": 10, "sources": []any{"ads", "seo"}}

	set := store.Set(ctx, "k1", value, 300*time.Second, meta)
	require.True(t, set.OK)
	require.NoError(t, set.Err)

	got := store.Get(ctx, "k1")
	require.True(t, got.OK)

	var withMeta map[string]any
	require.NoError(t, json.Unmarshal(got.Value, &withMeta))
	envelope, ok := withMeta[MetadataField].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T12:00:00Z", envelope["cached_at"])
	assert.Equal(t, OpSummaryMetrics, envelope["operation"])
	assert.Equal(t, "org-1", envelope["organization_id"])
	assert.Equal(t, float64(300), envelope["ttl"])

	stripped, gotMeta, err := StripMetadata(got.Value)
	require.NoError(t, err)
	require.NotNil(t, gotMeta)
	assert.True(t, gotMeta.CachedAt.Equal(cachedAt))

	var plain map[string]any
	require.NoError(t, json.Unmarshal(stripped, &plain))
	want := map[string]any{"leads": float64(10), "sources": []any{"ads", "seo"}}
	if diff := deep.Equal(want, plain); diff != nil {
		t.Fatalf("round trip mismatch: %v", diff)
	}
}

func TestRedisStoreSetAppliesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "k1", map[string]int{"a": 1}, 150*time.Second, nil).OK)
	assert.Equal(t, 150*time.Second, mr.TTL("k1"))

	mr.FastForward(151 * time.Second)
	assert.False(t, store.Get(ctx, "k1").OK)
}

func TestRedisStoreMissIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)
	res := store.Get(context.Background(), "absent")
	assert.False(t, res.OK)
	assert.NoError(t, res.Err)
}

func TestRedisStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Set(ctx, "k1", map[string]int{"a": 1}, time.Minute, nil).OK)

	first := store.Delete(ctx, "k1")
	assert.True(t, first.OK)
	assert.Equal(t, int64(1), first.Value)

	for i := 0; i < 2; i++ {
		again := store.Delete(ctx, "k1")
		assert.False(t, again.OK)
		assert.Equal(t, int64(0), again.Value)
		assert.NoError(t, again.Err)
	}

	never := store.Delete(ctx, "never-set")
	assert.False(t, never.OK)
	assert.NoError(t, never.Err)
}

func TestRedisStoreDeleteByPattern(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{
		"analytics:summary_metrics:org:a:params:1",
		"analytics:conversion_funnel:org:a:params:2",
		"analytics:summary_metrics:org:b:params:1",
	} {
		require.True(t, store.Set(ctx, k, map[string]int{"v": 1}, time.Minute, nil).OK)
	}

	res := store.DeleteByPattern(ctx, TenantPattern("a"))
	assert.Equal(t, int64(2), res.Value)
	assert.True(t, store.Exists(ctx, "analytics:summary_metrics:org:b:params:1").OK)

	none := store.DeleteByPattern(ctx, TenantPattern("a"))
	assert.Equal(t, int64(0), none.Value)
	assert.NoError(t, none.Err)
}

func TestRedisStoreExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.False(t, store.Exists(ctx, "k").OK)
	require.True(t, store.Set(ctx, "k", []int{1, 2}, time.Minute, nil).OK)
	assert.True(t, store.Exists(ctx, "k").OK)
}

func TestRedisStoreNonObjectValuesHaveNoEnvelope(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	meta := &Metadata{Operation: OpLeadTrends, OrganizationID: "org-1", TTL: 60}
	require.True(t, store.Set(ctx, "list", []int{1, 2, 3}, time.Minute, meta).OK)

	got := store.Get(ctx, "list")
	require.True(t, got.OK)
	assert.JSONEq(t, `[1,2,3]`, string(got.Value))
}

func TestRedisStoreUnserializableValueIsFatal(t *testing.T) {
	store, mr := newTestStore(t)

	res := store.Set(context.Background(), "bad", map[string]any{"ch": make(chan int)}, time.Minute, nil)
	assert.False(t, res.OK)
	assert.True(t, res.Fatal())
	assert.ErrorIs(t, res.Err, ErrSerialization)
	assert.False(t, mr.Exists("bad"))
}

func TestRedisStoreCorruptValueIsFatal(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("corrupt", "{not json"))

	res := store.Get(context.Background(), "corrupt")
	assert.False(t, res.OK)
	assert.True(t, res.Fatal())
}

func TestRedisStoreUnreachableAtConstruction(t *testing.T) {
	store, mr := newUnreachableStore(t)
	ctx := context.Background()

	get := store.Get(ctx, "k")
	assert.False(t, get.OK)
	assert.ErrorIs(t, get.Err, ErrStoreUnavailable)
	assert.False(t, get.Fatal())

	set := store.Set(ctx, "k", map[string]int{"a": 1}, time.Minute, nil)
	assert.False(t, set.OK)
	assert.ErrorIs(t, set.Err, ErrStoreUnavailable)

	assert.False(t, store.Delete(ctx, "k").OK)
	assert.Equal(t, int64(0), store.DeleteByPattern(ctx, "analytics:*").Value)
	assert.False(t, store.Exists(ctx, "k").OK)
	assert.False(t, store.Ping(ctx).OK)

	stats := store.Stats(ctx, "org-1")
	require.NotNil(t, stats.Value)
	assert.False(t, stats.Value.Available)

	// The server is back, but the adapter must not have reconnected.
	assert.False(t, mr.Exists("k"))
	assert.False(t, store.Available())
}

func TestRedisStoreFailureAfterConstructionDegrades(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	get := store.Get(ctx, "k")
	assert.False(t, get.OK)
	assert.ErrorIs(t, get.Err, ErrStoreUnavailable)

	set := store.Set(ctx, "k", map[string]int{"a": 1}, time.Minute, nil)
	assert.False(t, set.OK)
	assert.False(t, set.Fatal())
}

func TestNilClientDisablesStore(t *testing.T) {
	store := NewRedisStore(context.Background(), nil, zaptest.NewLogger(t))
	assert.False(t, store.Available())
	assert.False(t, store.Get(context.Background(), "k").OK)
}
