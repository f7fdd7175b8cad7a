package usecases

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsQuery: параметры запроса аналитики от клиента.
type AnalyticsQuery struct {
	OrganizationID string
	Days           int
	FreshnessHours float64
	ForceRefresh   bool
	// Year и Month используются только месячным отчетом.
	Year  int
	Month int
}

func (q AnalyticsQuery) request(params map[string]any) cache.Request {
	return cache.Request{
		OrganizationID: q.OrganizationID,
		Params:         params,
		ForceRefresh:   q.ForceRefresh,
		FreshnessHours: q.FreshnessHours,
	}
}

func (q *AnalyticsQuery) normalizeDays() error {
	if q.Days == 0 {
		q.Days = defaultAnalyticsDays
	}
	if q.Days < 1 || q.Days > maxAnalyticsDays {
		return fmt.Errorf("days must be between 1 and %d: %w", maxAnalyticsDays, domain.ErrInvalidInput)
	}
	if q.FreshnessHours < 0 {
		return fmt.Errorf("freshness_hours must not be negative: %w", domain.ErrInvalidInput)
	}
	return nil
}

// AnalyticsUsecase отдает аналитику по воронке продаж.
// Каждая операция читается через кэш (read-through) и измеряется монитором.
// Монитор видит только реальные походы в базу: попадания в кэш не считаются запросами.
type AnalyticsUsecase struct {
	repo    domain.AnalyticsRepository
	cache   *cache.Service
	monitor *monitor.Monitor
	limiter *RateLimiter
	clock   clockwork.Clock
	logger  *zap.Logger

	summary   cache.Func[domain.SummaryMetrics]
	funnel    cache.Func[domain.ConversionFunnel]
	sources   cache.Func[domain.SourceReport]
	timing    cache.Func[domain.StageTiming]
	behavior  cache.Func[domain.BehaviorInsights]
	trends    cache.Func[domain.LeadTrends]
	monthly   cache.Func[domain.MonthlyReport]
	dashboard cache.Func[domain.ExecutiveDashboard]
}

// NewAnalyticsUsecase собирает обернутые операции. cacheSvc может быть nil, тогда все идет
// напрямую в базу.
func NewAnalyticsUsecase(
	repo domain.AnalyticsRepository,
	cacheSvc *cache.Service,
	mon *monitor.Monitor,
	logger *zap.Logger,
	maxConcurrentQueries int,
	clock clockwork.Clock,
) *AnalyticsUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if mon == nil {
		mon = monitor.New(logger)
	}

	u := &AnalyticsUsecase{
		repo:    repo,
		cache:   cacheSvc,
		monitor: mon,
		limiter: NewRateLimiter(maxConcurrentQueries),
		clock:   clock,
		logger:  logger,
	}

	u.summary = tracked(u, cache.OpSummaryMetrics, true, u.computeSummary)
	u.funnel = tracked(u, cache.OpConversionFunnel, true, u.computeFunnel)
	u.sources = tracked(u, cache.OpSourcePerformance, true, u.computeSources)
	u.timing = tracked(u, cache.OpStageTiming, true, u.computeStageTiming)
	u.behavior = tracked(u, cache.OpBehaviorInsights, true, u.computeBehavior)
	u.trends = tracked(u, cache.OpLeadTrends, true, u.computeTrends)
	// Составные операции сами слот не держат: их части берут слоты по отдельности.
	u.monthly = tracked(u, cache.OpMonthlyReport, false, u.computeMonthly)
	u.dashboard = tracked(u, cache.OpExecutiveDashboard, false, u.computeDashboard)

	return u
}

// tracked оборачивает вычисление монитором, ограничителем и кэшем (снаружи внутрь: кэш,
// монитор, слот).
func tracked[R any](u *AnalyticsUsecase, op string, limited bool, compute func(context.Context, cache.Request) (R, error)) cache.Func[R] {
	return cache.Cached(u.cache, op, func(ctx context.Context, req cache.Request) (R, error) {
		return monitor.Track(ctx, u.monitor, op, func(ctx context.Context) (R, error) {
			if !limited {
				return compute(ctx, req)
			}
			return withSlot(ctx, u.limiter, func() (R, error) {
				return compute(ctx, req)
			})
		})
	})
}

func (u *AnalyticsUsecase) Summary(ctx context.Context, q AnalyticsQuery) (domain.SummaryMetrics, error) {
	if err := q.normalizeDays(); err != nil {
		return domain.SummaryMetrics{}, err
	}
	return u.summary(ctx, q.request(map[string]any{"days": q.Days}))
}

func (u *AnalyticsUsecase) Funnel(ctx context.Context, q AnalyticsQuery) (domain.ConversionFunnel, error) {
	if err := q.normalizeDays(); err != nil {
		return domain.ConversionFunnel{}, err
	}
	return u.funnel(ctx, q.request(map[string]any{"days": q.Days}))
}

func (u *AnalyticsUsecase) Sources(ctx context.Context, q AnalyticsQuery) (domain.SourceReport, error) {
	if err := q.normalizeDays(); err != nil {
		return domain.SourceReport{}, err
	}
	return u.sources(ctx, q.request(map[string]any{"days": q.Days}))
}

func (u *AnalyticsUsecase) Trends(ctx context.Context, q AnalyticsQuery) (domain.LeadTrends, error) {
	if err := q.normalizeDays(); err != nil {
		return domain.LeadTrends{}, err
	}
	return u.trends(ctx, q.request(map[string]any{"days": q.Days}))
}

// StageTiming и BehaviorInsights не зависят от периода, ключ кэша без параметров.
func (u *AnalyticsUsecase) StageTiming(ctx context.Context, q AnalyticsQuery) (domain.StageTiming, error) {
	return u.timing(ctx, q.request(nil))
}

func (u *AnalyticsUsecase) BehaviorInsights(ctx context.Context, q AnalyticsQuery) (domain.BehaviorInsights, error) {
	return u.behavior(ctx, q.request(nil))
}

// MonthlyReport по умолчанию строит отчет за прошлый календарный месяц.
func (u *AnalyticsUsecase) MonthlyReport(ctx context.Context, q AnalyticsQuery) (domain.MonthlyReport, error) {
	if q.Year == 0 && q.Month == 0 {
		prev := u.clock.Now().UTC().AddDate(0, -1, 0)
		q.Year, q.Month = prev.Year(), int(prev.Month())
	}
	if q.Month < 1 || q.Month > 12 || q.Year < 2000 || q.Year > 9999 {
		return domain.MonthlyReport{}, fmt.Errorf("invalid report month %d-%d: %w", q.Year, q.Month, domain.ErrInvalidInput)
	}
	return u.monthly(ctx, q.request(map[string]any{"year": q.Year, "month": q.Month}))
}

func (u *AnalyticsUsecase) ExecutiveDashboard(ctx context.Context, q AnalyticsQuery) (domain.ExecutiveDashboard, error) {
	if err := q.normalizeDays(); err != nil {
		return domain.ExecutiveDashboard{}, err
	}
	return u.dashboard(ctx, q.request(map[string]any{"days": q.Days}))
}

// CacheStats возвращает статистику хранилища кэша и ключей организации.
func (u *AnalyticsUsecase) CacheStats(ctx context.Context, orgID string) *cache.Stats {
	if u.cache == nil {
		return &cache.Stats{}
	}
	return u.cache.Stats(ctx, orgID)
}

// InvalidateOrganization удаляет все закэшированные отчеты организации.
func (u *AnalyticsUsecase) InvalidateOrganization(ctx context.Context, orgID string) (int64, error) {
	if u.cache == nil || !u.cache.Available() {
		return 0, cache.ErrStoreUnavailable
	}
	res := u.cache.Invalidator().InvalidateTenant(ctx, orgID)
	if res.Err != nil {
		return 0, res.Err
	}
	return res.Value, nil
}

func (u *AnalyticsUsecase) Performance() monitor.Snapshot {
	return u.monitor.Snapshot()
}

func (u *AnalyticsUsecase) ResetPerformance() {
	u.monitor.Reset()
}

func (u *AnalyticsUsecase) period(req cache.Request) domain.DateRange {
	return domain.LastDays(u.clock.Now(), intParam(req, "days", defaultAnalyticsDays))
}

func (u *AnalyticsUsecase) computeSummary(ctx context.Context, req cache.Request) (domain.SummaryMetrics, error) {
	rows, err := u.repo.DailyMetrics(ctx, req.OrganizationID, u.period(req))
	if err != nil {
		return domain.SummaryMetrics{}, err
	}
	return summarize(rows), nil
}

func (u *AnalyticsUsecase) computeFunnel(ctx context.Context, req cache.Request) (domain.ConversionFunnel, error) {
	rows, err := u.repo.DailyMetrics(ctx, req.OrganizationID, u.period(req))
	if err != nil {
		return domain.ConversionFunnel{}, err
	}
	return buildFunnel(rows), nil
}

func (u *AnalyticsUsecase) computeSources(ctx context.Context, req cache.Request) (domain.SourceReport, error) {
	rows, err := u.repo.SourceMetrics(ctx, req.OrganizationID, u.period(req))
	if err != nil {
		return domain.SourceReport{}, err
	}
	return sourceReport(rows), nil
}

func (u *AnalyticsUsecase) computeStageTiming(ctx context.Context, req cache.Request) (domain.StageTiming, error) {
	rows, err := u.repo.StageTimings(ctx, req.OrganizationID)
	if err != nil {
		return domain.StageTiming{}, err
	}
	return stageTiming(rows), nil
}

func (u *AnalyticsUsecase) computeBehavior(ctx context.Context, req cache.Request) (domain.BehaviorInsights, error) {
	rows, err := u.repo.LeadActivity(ctx, req.OrganizationID)
	if err != nil {
		return domain.BehaviorInsights{}, err
	}
	return behaviorInsights(rows), nil
}

func (u *AnalyticsUsecase) computeTrends(ctx context.Context, req cache.Request) (domain.LeadTrends, error) {
	period := u.period(req)
	rows, err := u.repo.DailyMetrics(ctx, req.OrganizationID, period)
	if err != nil {
		return domain.LeadTrends{}, err
	}
	return leadTrends(rows, period), nil
}

// computeMonthly читает строки месяца параллельно (дневные метрики и источники).
func (u *AnalyticsUsecase) computeMonthly(ctx context.Context, req cache.Request) (domain.MonthlyReport, error) {
	year, month := intParam(req, "year", 0), intParam(req, "month", 0)
	period := monthRange(year, month)

	var (
		daily   []domain.DailyLeadMetrics
		sources []domain.SourceDailyMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		daily, err = withSlot(gctx, u.limiter, func() ([]domain.DailyLeadMetrics, error) {
			return u.repo.DailyMetrics(gctx, req.OrganizationID, period)
		})
		return err
	})
	g.Go(func() (err error) {
		sources, err = withSlot(gctx, u.limiter, func() ([]domain.SourceDailyMetrics, error) {
			return u.repo.SourceMetrics(gctx, req.OrganizationID, period)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MonthlyReport{}, err
	}

	return domain.MonthlyReport{
		Year:    year,
		Month:   month,
		Summary: summarize(daily),
		Funnel:  buildFunnel(daily),
		Sources: sourceReport(sources).Sources,
	}, nil
}

// computeDashboard собирает сводку, воронку и источники параллельно через их кэшируемые
// операции, так что части дашборда переиспользуются отдельными эндпоинтами.
func (u *AnalyticsUsecase) computeDashboard(ctx context.Context, req cache.Request) (domain.ExecutiveDashboard, error) {
	var dash domain.ExecutiveDashboard
	dash.Period = u.period(req)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dash.Summary, err = u.summary(gctx, req)
		return err
	})
	g.Go(func() (err error) {
		dash.Funnel, err = u.funnel(gctx, req)
		return err
	})
	g.Go(func() error {
		report, err := u.sources(gctx, req)
		if err != nil {
			return err
		}
		dash.TopSources = report.Sources
		if len(dash.TopSources) > topSourcesLimit {
			dash.TopSources = dash.TopSources[:topSourcesLimit]
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ExecutiveDashboard{}, err
	}
	return dash, nil
}

func intParam(req cache.Request, key string, def int) int {
	if v, ok := req.Params[key].(int); ok {
		return v
	}
	return def
}
