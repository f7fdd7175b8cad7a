package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Tenant is anything that carries an organization id.
type Tenant interface {
	GetID() string
}

// Request carries the arguments of a cacheable analytics call.
type Request struct {
	// Org takes precedence over OrganizationID when both are set.
	Org            Tenant
	OrganizationID string
	Params         map[string]any
	ForceRefresh   bool
	// FreshnessHours scales the TTL; zero means the service default.
	FreshnessHours float64
}

func (r Request) tenant() string {
	if r.Org != nil {
		if id := r.Org.GetID(); id != "" {
			return id
		}
	}
	return r.OrganizationID
}

// Func is a data-producing operation.
type Func[R any] func(ctx context.Context, req Request) (R, error)

type cachedOptions struct {
	ttl time.Duration
}

// CachedOption tunes a single wrapped operation.
type CachedOption func(*cachedOptions)

// WithTTL overrides the TTL policy for one operation.
func WithTTL(ttl time.Duration) CachedOption {
	return func(o *cachedOptions) { o.ttl = ttl }
}

// Cached wraps fn with read-through caching under operation. Errors from fn are returned
// untouched and never cached; empty results are not cached either. Concurrent misses on
// the same key each run fn.
func Cached[R any](svc *Service, operation string, fn Func[R], opts ...CachedOption) Func[R] {
	var o cachedOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, req Request) (R, error) {
		var zero R

		if svc == nil || !svc.Available() {
			return fn(ctx, req)
		}

		tenantID := req.tenant()
		if tenantID == "" {
			svc.logger.Warn("no organization id in request, executing without cache",
				zap.String("operation", operation),
			)
			return fn(ctx, req)
		}
		if err := validateTenant(tenantID); err != nil {
			svc.logger.Warn("organization id unusable in cache key, executing without cache",
				zap.String("operation", operation),
				zap.Error(err),
			)
			return fn(ctx, req)
		}

		key, err := DeriveKey(operation, tenantID, req.Params)
		if err != nil {
			return zero, err
		}

		if !req.ForceRefresh {
			res := svc.store.Get(ctx, key)
			if res.Fatal() {
				return zero, res.Err
			}
			if res.OK {
				var out R
				if err := decodeCached(res.Value, &out); err != nil {
					return zero, err
				}
				svc.hit(operation)
				return out, nil
			}
		}
		svc.miss(operation)

		result, err := fn(ctx, req)
		if err != nil {
			return result, err
		}
		if isEmpty(result) {
			return result, nil
		}

		ttl := o.ttl
		if ttl <= 0 {
			freshness := req.FreshnessHours
			if freshness <= 0 {
				freshness = svc.freshness
			}
			ttl = time.Duration(TTLSeconds(operation, freshness)) * time.Second
		}

		meta := &Metadata{
			CachedAt:       svc.clock.Now().UTC(),
			Operation:      operation,
			OrganizationID: tenantID,
			TTL:            int(ttl / time.Second),
		}
		if set := svc.store.Set(ctx, key, result, ttl, meta); set.Fatal() {
			return zero, set.Err
		}

		return result, nil
	}
}

func decodeCached(raw json.RawMessage, out any) error {
	stripped, _, err := StripMetadata(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stripped, out); err != nil {
		return fmt.Errorf("%w: cached value: %v", ErrSerialization, err)
	}
	return nil
}

// isEmpty mirrors "nothing worth caching": nil, empty collections, zero scalars.
// Structs always count as non-empty.
func isEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return isEmpty(rv.Elem().Interface())
	case reflect.Struct:
		return false
	default:
		return rv.IsZero()
	}
}
