package cache

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultFreshnessHours applies when a request does not ask for a specific freshness.
const DefaultFreshnessHours = 1.0

// HitRecorder receives hit/miss notifications from cached operations.
type HitRecorder interface {
	CacheHit(operation string)
	CacheMiss(operation string)
}

// Service is the process-wide analytics cache. It is built once at startup and passed
// to whatever needs it.
type Service struct {
	store       Store
	invalidator *Invalidator
	logger      *zap.Logger
	clock       clockwork.Clock
	freshness   float64
	disabled    bool
	recorder    HitRecorder
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock used for cached_at timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithDefaultFreshness sets the freshness used when requests leave it at zero.
func WithDefaultFreshness(hours float64) Option {
	return func(s *Service) {
		if hours > 0 {
			s.freshness = hours
		}
	}
}

// WithRecorder reports hits and misses to r.
func WithRecorder(r HitRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Disabled turns every cached operation into a direct call.
func Disabled() Option {
	return func(s *Service) { s.disabled = true }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		freshness: DefaultFreshnessHours,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.invalidator = NewInvalidator(store, logger)
	return s
}

// Store exposes the underlying adapter.
func (s *Service) Store() Store {
	return s.store
}

// Invalidator returns the trigger bound to this service's store.
func (s *Service) Invalidator() *Invalidator {
	return s.invalidator
}

// Available reports whether cached operations will reach the store.
func (s *Service) Available() bool {
	return !s.disabled && s.store != nil && s.store.Available()
}

// Stats returns store statistics. A disabled or failing store yields Available=false.
func (s *Service) Stats(ctx context.Context, tenantID string) *Stats {
	if s.store == nil {
		return &Stats{}
	}
	res := s.store.Stats(ctx, tenantID)
	if res.Value == nil {
		return &Stats{}
	}
	return res.Value
}

func (s *Service) hit(op string) {
	if s.recorder != nil {
		s.recorder.CacheHit(op)
	}
}

func (s *Service) miss(op string) {
	if s.recorder != nil {
		s.recorder.CacheMiss(op)
	}
}
