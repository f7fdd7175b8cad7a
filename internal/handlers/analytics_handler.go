package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
)

// AnalyticsService is the part of the analytics usecase the HTTP layer needs
type AnalyticsService interface {
	Summary(ctx context.Context, q usecases.AnalyticsQuery) (domain.SummaryMetrics, error)
	Funnel(ctx context.Context, q usecases.AnalyticsQuery) (domain.ConversionFunnel, error)
	Sources(ctx context.Context, q usecases.AnalyticsQuery) (domain.SourceReport, error)
	Trends(ctx context.Context, q usecases.AnalyticsQuery) (domain.LeadTrends, error)
	StageTiming(ctx context.Context, q usecases.AnalyticsQuery) (domain.StageTiming, error)
	BehaviorInsights(ctx context.Context, q usecases.AnalyticsQuery) (domain.BehaviorInsights, error)
	MonthlyReport(ctx context.Context, q usecases.AnalyticsQuery) (domain.MonthlyReport, error)
	ExecutiveDashboard(ctx context.Context, q usecases.AnalyticsQuery) (domain.ExecutiveDashboard, error)
	CacheStats(ctx context.Context, orgID string) *cache.Stats
	InvalidateOrganization(ctx context.Context, orgID string) (int64, error)
	Performance() monitor.Snapshot
	ResetPerformance()
}

var _ AnalyticsService = (*usecases.AnalyticsUsecase)(nil)

// AnalyticsHandler serves /api/v1/analytics
type AnalyticsHandler struct {
	responder
	usecase AnalyticsService
}

func NewAnalyticsHandler(usecase AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{responder: responder{logger: logger}, usecase: usecase}
}

// query builds the usecase query from days, freshness_hours, force_refresh, year and month
func (h *AnalyticsHandler) query(r *http.Request) (usecases.AnalyticsQuery, error) {
	q := usecases.AnalyticsQuery{OrganizationID: middleware.OrganizationID(r.Context())}

	var err error
	if q.Days, err = queryInt(r, "days"); err != nil {
		return q, err
	}
	if q.FreshnessHours, err = queryFloat(r, "freshness_hours"); err != nil {
		return q, err
	}
	if q.ForceRefresh, err = queryBool(r, "force_refresh"); err != nil {
		return q, err
	}
	if q.Year, err = queryInt(r, "year"); err != nil {
		return q, err
	}
	if q.Month, err = queryInt(r, "month"); err != nil {
		return q, err
	}
	return q, nil
}

// serve runs one analytics read and writes its result
func serve[R any](h *AnalyticsHandler, name string, fn func(context.Context, usecases.AnalyticsQuery) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := h.query(r)
		if err != nil {
			h.fail(w, r, "parse query", err)
			return
		}
		result, err := fn(r.Context(), q)
		if err != nil {
			h.fail(w, r, "load "+name, err)
			return
		}
		h.respondJSON(w, r, http.StatusOK, result)
	}
}

func (h *AnalyticsHandler) Dashboard() http.HandlerFunc {
	return serve(h, "executive dashboard", h.usecase.ExecutiveDashboard)
}

func (h *AnalyticsHandler) Summary() http.HandlerFunc {
	return serve(h, "summary", h.usecase.Summary)
}

func (h *AnalyticsHandler) Funnel() http.HandlerFunc {
	return serve(h, "conversion funnel", h.usecase.Funnel)
}

func (h *AnalyticsHandler) Sources() http.HandlerFunc {
	return serve(h, "source performance", h.usecase.Sources)
}

func (h *AnalyticsHandler) StageTiming() http.HandlerFunc {
	return serve(h, "stage timing", h.usecase.StageTiming)
}

func (h *AnalyticsHandler) Behavior() http.HandlerFunc {
	return serve(h, "behavior insights", h.usecase.BehaviorInsights)
}

func (h *AnalyticsHandler) Trends() http.HandlerFunc {
	return serve(h, "lead trends", h.usecase.Trends)
}

func (h *AnalyticsHandler) MonthlyReport() http.HandlerFunc {
	return serve(h, "monthly report", h.usecase.MonthlyReport)
}

// CacheStats handles GET /analytics/cache/stats
func (h *AnalyticsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, http.StatusOK, h.usecase.CacheStats(r.Context(), middleware.OrganizationID(r.Context())))
}

// InvalidateCache handles DELETE /analytics/cache
func (h *AnalyticsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrganizationID(r.Context())
	deleted, err := h.usecase.InvalidateOrganization(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, "invalidate cache", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"organization_id": orgID,
		"deleted_keys":    deleted,
	})
}

// Performance handles GET /analytics/performance
func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	snap := h.usecase.Performance()
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  snap.Status(),
		"metrics": snap,
	})
}

// ResetPerformance handles POST /analytics/performance/reset
func (h *AnalyticsHandler) ResetPerformance(w http.ResponseWriter, r *http.Request) {
	h.usecase.ResetPerformance()
	h.respondJSON(w, r, http.StatusOK, map[string]string{"message": "performance counters reset"})
}
