package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const probeTimeout = 2 * time.Second

// RedisStore adapts a Redis client to Store. It probes the server once on construction;
// if that fails the adapter stays disabled for its whole lifetime and never touches the
// network again.
type RedisStore struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	enabled bool
}

// NewRedisStore probes client with PING and returns an adapter that is enabled only if
// the probe succeeded.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, logger *zap.Logger) *RedisStore {
	s := &RedisStore{
		client: client,
		logger: logger,
	}

	if client == nil {
		logger.Warn("analytics cache disabled: no redis client configured")
		return s
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := client.Ping(probeCtx).Err(); err != nil {
		logger.Warn("analytics cache disabled: redis unreachable, running without cache",
			zap.Error(err),
		)
		return s
	}

	s.enabled = true
	logger.Info("analytics cache connected")
	return s
}

// Available reports the construction-time connectivity decision.
func (s *RedisStore) Available() bool {
	return s.enabled
}

// Get returns the raw stored JSON, metadata envelope included.
func (s *RedisStore) Get(ctx context.Context, key string) Result[json.RawMessage] {
	if !s.enabled {
		return failed[json.RawMessage](ErrStoreUnavailable)
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result[json.RawMessage]{}
	}
	if err != nil {
		return failed[json.RawMessage](s.storeFailure("get", key, err))
	}

	if !json.Valid(data) {
		return failed[json.RawMessage](fmt.Errorf("%w: stored value under %s is not valid JSON", ErrSerialization, key))
	}

	return Result[json.RawMessage]{Value: data, OK: true}
}

// Set stores value as JSON with SETEX. meta is merged into JSON objects when non-nil.
// Encoding happens before the availability check so bad values are reported even when
// the store is down.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration, meta *Metadata) Result[struct{}] {
	payload, err := encodeValue(value, meta)
	if err != nil {
		return failed[struct{}](err)
	}

	if !s.enabled {
		return failed[struct{}](ErrStoreUnavailable)
	}

	if ttl < time.Second {
		ttl = time.Second
	}

	if err := s.client.SetEx(ctx, key, payload, ttl).Err(); err != nil {
		return failed[struct{}](s.storeFailure("set", key, err))
	}

	return Result[struct{}]{OK: true}
}

// Delete removes key. Deleting a missing key is not an error: Value is 0 and OK false.
func (s *RedisStore) Delete(ctx context.Context, key string) Result[int64] {
	if !s.enabled {
		return failed[int64](ErrStoreUnavailable)
	}

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return failed[int64](s.storeFailure("delete", key, err))
	}

	return Result[int64]{Value: n, OK: n > 0}
}

// DeleteByPattern enumerates keys with KEYS and deletes them. KEYS is O(total keys) on
// the server.
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) Result[int64] {
	if !s.enabled {
		return failed[int64](ErrStoreUnavailable)
	}

	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return failed[int64](s.storeFailure("keys", pattern, err))
	}
	if len(keys) == 0 {
		return Result[int64]{}
	}

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return failed[int64](s.storeFailure("delete_pattern", pattern, err))
	}

	s.logger.Debug("analytics cache keys deleted",
		zap.String("pattern", pattern),
		zap.Int64("deleted", n),
	)

	return Result[int64]{Value: n, OK: n > 0}
}

// Exists reports presence of key through OK.
func (s *RedisStore) Exists(ctx context.Context, key string) Result[struct{}] {
	if !s.enabled {
		return failed[struct{}](ErrStoreUnavailable)
	}

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return failed[struct{}](s.storeFailure("exists", key, err))
	}

	return Result[struct{}]{OK: n > 0}
}

// Ping checks reachability for health reporting. It does not re-enable a disabled adapter.
func (s *RedisStore) Ping(ctx context.Context) Result[struct{}] {
	if !s.enabled {
		return failed[struct{}](ErrStoreUnavailable)
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return failed[struct{}](s.storeFailure("ping", "", err))
	}

	return Result[struct{}]{OK: true}
}

// Stats gathers INFO counters and, when tenantID is set, a per-tenant key breakdown.
func (s *RedisStore) Stats(ctx context.Context, tenantID string) Result[*Stats] {
	if !s.enabled {
		return Result[*Stats]{Value: &Stats{Available: false}, Err: ErrStoreUnavailable}
	}

	info, err := s.client.Info(ctx).Result()
	if err != nil {
		return Result[*Stats]{
			Value: &Stats{Available: false},
			Err:   s.storeFailure("info", "", err),
		}
	}

	stats := statsFromInfo(parseInfo(info))
	stats.Available = true

	if tenantID != "" {
		keys, err := s.client.Keys(ctx, TenantPattern(tenantID)).Result()
		if err != nil {
			return Result[*Stats]{Value: stats, Err: s.storeFailure("keys", TenantPattern(tenantID), err)}
		}
		stats.Tenant = tenantStats(tenantID, keys)
	}

	return Result[*Stats]{Value: stats, OK: true}
}

func (s *RedisStore) storeFailure(op, key string, err error) error {
	s.logger.Warn("analytics cache operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

var _ Store = (*RedisStore)(nil)
