package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultSlowQueryThreshold marks a successful query as slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

const (
	slowPercentDegraded   = 20.0
	errorPercentUnhealthy = 5.0
	tracerName            = "lovedcrm/analytics"
)

// HealthStatus is the coarse state derived from the counters.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalQueries        int64   `json:"total_queries"`
	SlowQueries         int64   `json:"slow_queries"`
	Errors              int64   `json:"errors"`
	SlowQueryPercentage float64 `json:"slow_query_percentage"`
	ErrorPercentage     float64 `json:"error_percentage"`
	ThresholdMs         int64   `json:"slow_query_threshold_ms"`
}

// Status maps the percentages onto a health state. Errors dominate slowness.
func (s Snapshot) Status() HealthStatus {
	switch {
	case s.ErrorPercentage > errorPercentUnhealthy:
		return StatusUnhealthy
	case s.SlowQueryPercentage > slowPercentDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Monitor counts analytics query outcomes. Only successful calls add to the total;
// a failed call increments errors alone.
type Monitor struct {
	mu     sync.Mutex
	total  int64
	slow   int64
	errors int64

	threshold time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// Option configures a Monitor
type Option func(*Monitor)

func WithThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.threshold = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

func New(logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		threshold: DefaultSlowQueryThreshold,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Track runs fn under the monitor. The error, if any, is returned unchanged.
func Track[T any](ctx context.Context, m *Monitor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := m.tracer.Start(ctx, "analytics."+operation,
		trace.WithAttributes(attribute.String("analytics.operation", operation)),
	)
	defer span.End()

	start := m.clock.Now()
	result, err := fn(ctx)
	elapsed := m.clock.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.recordError(operation, elapsed, err)
		return result, err
	}

	slow := elapsed > m.threshold
	span.SetAttributes(attribute.Bool("analytics.slow", slow))
	m.recordSuccess(operation, elapsed, slow)
	return result, nil
}

// Wrap returns fn decorated with Track.
func Wrap[T any](m *Monitor, operation string, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Track(ctx, m, operation, fn)
	}
}

func (m *Monitor) recordSuccess(operation string, elapsed time.Duration, slow bool) {
	m.mu.Lock()
	m.total++
	if slow {
		m.slow++
	}
	m.mu.Unlock()

	if slow {
		m.logger.Warn("slow analytics query",
			zap.String("operation", operation),
			zap.Duration("duration", elapsed),
			zap.Duration("threshold", m.threshold),
		)
	}
	if m.metrics != nil {
		status := "ok"
		if slow {
			status = "slow"
		}
		m.metrics.observe(operation, status, elapsed)
	}
}

func (m *Monitor) recordError(operation string, elapsed time.Duration, err error) {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()

	m.logger.Error("analytics query failed",
		zap.String("operation", operation),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
	if m.metrics != nil {
		m.metrics.observe(operation, "error", elapsed)
	}
}

// Snapshot copies the counters and derives percentages against the success total.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		TotalQueries:        m.total,
		SlowQueries:         m.slow,
		Errors:              m.errors,
		SlowQueryPercentage: percentage(m.slow, m.total),
		ErrorPercentage:     percentage(m.errors, m.total),
		ThresholdMs:         m.threshold.Milliseconds(),
	}
}

// Reset zeroes the counters. Prometheus series are cumulative and are left alone.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.total, m.slow, m.errors = 0, 0, 0
	m.mu.Unlock()
	m.logger.Info("performance counters reset")
}

// Threshold returns the slow query cut-off.
func (m *Monitor) Threshold() time.Duration {
	return m.threshold
}

func (m *Monitor) CacheHit(operation string) {
	if m.metrics != nil {
		m.metrics.CacheHits.WithLabelValues(operation).Inc()
	}
}

func (m *Monitor) CacheMiss(operation string) {
	if m.metrics != nil {
		m.metrics.CacheMisses.WithLabelValues(operation).Inc()
	}
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
