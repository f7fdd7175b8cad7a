package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the cache store adapter contract. Implementations never panic or return
// store failures out of band: every call reports through its Result.
type Store interface {
	Get(ctx context.Context, key string) Result[json.RawMessage]
	Set(ctx context.Context, key string, value any, ttl time.Duration, meta *Metadata) Result[struct{}]
	Delete(ctx context.Context, key string) Result[int64]
	DeleteByPattern(ctx context.Context, pattern string) Result[int64]
	Exists(ctx context.Context, key string) Result[struct{}]
	Ping(ctx context.Context) Result[struct{}]
	Stats(ctx context.Context, tenantID string) Result[*Stats]
	Available() bool
}
