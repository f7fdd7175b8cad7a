package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/config"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
)

func run(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	if e == nil {
		e = &env{store: redisStore}
	}
	root := buildRootCmd(e)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// miniredisEnv points the store-facing commands at an in-process server.
func miniredisEnv(t *testing.T) (*env, *cache.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(context.Background(), client, zaptest.NewLogger(t))
	require.True(t, store.Available())

	return &env{
		store: func(context.Context, *config.Config, *zap.Logger) (cache.Store, func(), error) {
			return store, func() {}, nil
		},
	}, store
}

func seed(t *testing.T, store cache.Store, op, org string, params map[string]any) string {
	t.Helper()
	key, err := cache.DeriveKey(op, org, params)
	require.NoError(t, err)
	res := store.Set(context.Background(), key, map[string]any{"total_leads": 3}, time.Minute, nil)
	require.NoError(t, res.Err)
	return key
}

func TestKeyCommand(t *testing.T) {
	out, err := run(t, nil, "key", cache.OpSummaryMetrics, "--org", "org-1", "-p", "days=30", "-p", "force=true")
	require.NoError(t, err)

	want, err := cache.DeriveKey(cache.OpSummaryMetrics, "org-1", map[string]any{"days": 30, "force": true})
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)
}

func TestKeyCommandRequiresOrg(t *testing.T) {
	_, err := run(t, nil, "key", cache.OpSummaryMetrics)
	require.Error(t, err)
}

func TestKeyCommandRejectsBadParam(t *testing.T) {
	_, err := run(t, nil, "key", cache.OpSummaryMetrics, "--org", "org-1", "-p", "days")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected name=value")
}

func TestTTLCommand(t *testing.T) {
	out, err := run(t, nil, "ttl", cache.OpSummaryMetrics, cache.OpExecutiveDashboard, "--freshness", "8")
	require.NoError(t, err)
	assert.Equal(t,
		fmt.Sprintf("%-22s %6ds\n%-22s %6ds\n", cache.OpSummaryMetrics, 1200, cache.OpExecutiveDashboard, 600),
		out,
	)
}

func TestTTLCommandListsKnownOperations(t *testing.T) {
	out, err := run(t, nil, "ttl")
	require.NoError(t, err)
	for _, op := range cache.KnownOperations() {
		assert.Contains(t, out, op)
	}
}

func TestStatsCommandJSON(t *testing.T) {
	e, store := miniredisEnv(t)
	seed(t, store, cache.OpSummaryMetrics, "org-1", map[string]any{"days": 30})
	seed(t, store, cache.OpConversionFunnel, "org-1", nil)

	out, err := run(t, e, "stats", "--org", "org-1", "-o", "json")
	require.NoError(t, err)

	var stats cache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.True(t, stats.Available)
	require.NotNil(t, stats.Tenant)
	assert.Equal(t, 2, stats.Tenant.TotalKeys)
	assert.Equal(t, 1, stats.Tenant.ByOperation[cache.OpSummaryMetrics])
}

func TestStatsCommandYAML(t *testing.T) {
	e, _ := miniredisEnv(t)

	out, err := run(t, e, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "available: true")
	assert.NotContains(t, out, "tenant:")
}

func TestStatsCommandUnknownFormat(t *testing.T) {
	e, _ := miniredisEnv(t)

	_, err := run(t, e, "stats", "-o", "xml")
	require.Error(t, err)
}

func TestInvalidateCommandByEvent(t *testing.T) {
	e, store := miniredisEnv(t)
	summary := seed(t, store, cache.OpSummaryMetrics, "org-1", nil)
	monthly := seed(t, store, cache.OpMonthlyReport, "org-1", nil)

	out, err := run(t, e, "invalidate", "--org", "org-1", "--event", "stage_change")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%-22s %d", cache.OpSummaryMetrics, 1))

	ctx := context.Background()
	assert.False(t, store.Exists(ctx, summary).OK)
	assert.True(t, store.Exists(ctx, monthly).OK)
}

func TestInvalidateCommandWholeTenant(t *testing.T) {
	e, store := miniredisEnv(t)
	seed(t, store, cache.OpSummaryMetrics, "org-1", nil)
	seed(t, store, cache.OpMonthlyReport, "org-1", nil)
	other := seed(t, store, cache.OpMonthlyReport, "org-2", nil)

	out, err := run(t, e, "invalidate", "--org", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2 keys for org-1\n", out)
	assert.True(t, store.Exists(context.Background(), other).OK)
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, nil, "token", "--user", "user-1", "--org", "org-1")
	require.NoError(t, err)

	cfg := config.Get()
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, zap.NewNop())
	claims, err := auth.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "org-1", claims.OrganizationID)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"days=30", "ratio=0.5", "label=won", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"days": 30, "ratio": 0.5, "label": "won", "empty": ""}, params)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}
