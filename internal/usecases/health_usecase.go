package usecases

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
)

// CheckResult: результат одной проверки.
type CheckResult struct {
	Status  monitor.HealthStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

// HealthReport: сводное состояние сервиса.
type HealthReport struct {
	Status      monitor.HealthStatus   `json:"status"`
	Checks      map[string]CheckResult `json:"checks"`
	Performance monitor.Snapshot       `json:"performance"`
	CheckedAt   time.Time              `json:"checked_at"`
}

// ViewFreshness reports when the analytics views were last refreshed
type ViewFreshness interface {
	ViewsRefreshedAt(ctx context.Context) (time.Time, error)
}

// HealthUsecase собирает проверки базы, кэша, свежести представлений и порогов монитора.
// Недоступный кэш и устаревшие представления, это degraded, а не unhealthy:
// сервис продолжает отвечать, просто медленнее или по старым данным.
type HealthUsecase struct {
	db         domain.HealthChecker
	views      ViewFreshness
	cache      *cache.Service
	monitor    *monitor.Monitor
	staleAfter time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger

	last atomic.Pointer[HealthReport]
}

func NewHealthUsecase(
	db domain.HealthChecker,
	views ViewFreshness,
	cacheSvc *cache.Service,
	mon *monitor.Monitor,
	staleAfter time.Duration,
	logger *zap.Logger,
	clock clockwork.Clock,
) *HealthUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	return &HealthUsecase{
		db:         db,
		views:      views,
		cache:      cacheSvc,
		monitor:    mon,
		staleAfter: staleAfter,
		clock:      clock,
		logger:     logger,
	}
}

// Check выполняет все проверки и запоминает результат.
func (u *HealthUsecase) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:    monitor.StatusHealthy,
		Checks:    make(map[string]CheckResult, 4),
		CheckedAt: u.clock.Now().UTC(),
	}

	report.add("database", u.checkDatabase(ctx))
	report.add("cache", u.checkCache(ctx))
	report.add("analytics_views", u.checkViews(ctx))

	if u.monitor != nil {
		report.Performance = u.monitor.Snapshot()
		report.add("query_performance", CheckResult{Status: report.Performance.Status()})
	}

	u.last.Store(report)
	return report
}

// Last возвращает результат последней проверки или nil.
func (u *HealthUsecase) Last() *HealthReport {
	return u.last.Load()
}

// Run периодически выполняет проверки и пишет в лог смену статуса. Блокируется до отмены ctx.
func (u *HealthUsecase) Run(ctx context.Context, interval time.Duration) {
	ticker := u.clock.NewTicker(interval)
	defer ticker.Stop()

	var previous monitor.HealthStatus
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			report := u.Check(ctx)
			if report.Status != previous {
				u.logger.Info("статус здоровья изменился",
					zap.String("было", string(previous)),
					zap.String("стало", string(report.Status)),
				)
				previous = report.Status
			}
		}
	}
}

func (u *HealthUsecase) checkDatabase(ctx context.Context) CheckResult {
	if u.db == nil {
		return CheckResult{Status: monitor.StatusUnhealthy, Message: "not configured"}
	}
	if err := u.db.CheckConnection(ctx); err != nil {
		return CheckResult{Status: monitor.StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: monitor.StatusHealthy}
}

func (u *HealthUsecase) checkCache(ctx context.Context) CheckResult {
	if u.cache == nil || !u.cache.Available() {
		return CheckResult{Status: monitor.StatusDegraded, Message: "cache unavailable, serving uncached"}
	}
	if res := u.cache.Store().Ping(ctx); res.Err != nil {
		return CheckResult{Status: monitor.StatusDegraded, Message: res.Err.Error()}
	}
	return CheckResult{Status: monitor.StatusHealthy}
}

func (u *HealthUsecase) checkViews(ctx context.Context) CheckResult {
	if u.views == nil {
		return CheckResult{Status: monitor.StatusDegraded, Message: "not configured"}
	}
	refreshed, err := u.views.ViewsRefreshedAt(ctx)
	if err != nil {
		return CheckResult{Status: monitor.StatusDegraded, Message: err.Error()}
	}
	age := u.clock.Since(refreshed)
	if age > u.staleAfter {
		return CheckResult{
			Status:  monitor.StatusDegraded,
			Message: "views last refreshed " + age.Truncate(time.Second).String() + " ago",
		}
	}
	return CheckResult{Status: monitor.StatusHealthy}
}

func (r *HealthReport) add(name string, res CheckResult) {
	r.Checks[name] = res
	if severity(res.Status) > severity(r.Status) {
		r.Status = res.Status
	}
}

func severity(s monitor.HealthStatus) int {
	switch s {
	case monitor.StatusUnhealthy:
		return 2
	case monitor.StatusDegraded:
		return 1
	default:
		return 0
	}
}
