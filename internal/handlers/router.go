package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
)

// RouterConfig carries everything the HTTP surface is assembled from
type RouterConfig struct {
	Analytics      *AnalyticsHandler
	Leads          *LeadHandler
	Account        *AccountHandler
	Health         *HealthHandler
	Metrics        http.Handler
	Auth           *middleware.Authenticator
	Features       middleware.FeatureChecker
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter wires routes and middleware. /health and /metrics sit outside the
// middleware chain so probes stay cheap.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(cfg.Logger))
		r.Use(middleware.RecoveryMiddleware(cfg.Logger))
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		r.Use(middleware.TimeoutMiddleware(timeout))
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimiter, cfg.Logger))
		}
		r.Use(cfg.Auth.Middleware)

		feature := func(name string) func(http.Handler) http.Handler {
			return middleware.RequireFeature(cfg.Features, name, cfg.Logger)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if a := cfg.Analytics; a != nil {
				r.Route("/analytics", func(r chi.Router) {
					r.Get("/dashboard", a.Dashboard())
					r.Get("/summary", a.Summary())
					r.Get("/funnel", a.Funnel())
					r.Get("/cache/stats", a.CacheStats)
					r.Delete("/cache", a.InvalidateCache)
					r.Get("/performance", a.Performance)
					r.Post("/performance/reset", a.ResetPerformance)

					r.Group(func(r chi.Router) {
						r.Use(feature(domain.FeatureAdvancedAnalytics))
						r.Get("/sources", a.Sources())
						r.Get("/stage-timing", a.StageTiming())
						r.Get("/trends", a.Trends())
					})
					r.With(feature(domain.FeatureBehaviorInsights)).Get("/behavior", a.Behavior())
					r.With(feature(domain.FeatureMonthlyReports)).Get("/reports/monthly", a.MonthlyReport())
				})
			}

			if l := cfg.Leads; l != nil {
				r.Route("/leads", func(r chi.Router) {
					r.Get("/", l.ListLeads)
					r.Post("/", l.CreateLead)
					r.Get("/{id}", l.GetLead)
					r.Put("/{id}", l.UpdateLead)
					r.Delete("/{id}", l.DeleteLead)
					r.Post("/{id}/stage", l.ChangeStage)
				})
			}

			if acc := cfg.Account; acc != nil {
				r.Route("/billing", func(r chi.Router) {
					r.Get("/plans", acc.Plans)
					r.Get("/subscription", acc.Subscription)
					r.Put("/subscription", acc.ChangePlan)
					r.Delete("/subscription", acc.CancelSubscription)
				})

				r.Get("/preferences", acc.GetPreferences)
				r.Put("/preferences", acc.UpdatePreferences)

				r.Route("/2fa", func(r chi.Router) {
					r.Get("/", acc.TwoFactorStatus)
					r.Post("/verify", acc.TwoFactorVerify)
					r.Post("/disable", acc.TwoFactorDisable)
					r.Post("/backup-codes", acc.TwoFactorBackupCodes)
					r.Group(func(r chi.Router) {
						r.Use(feature(domain.FeatureTwoFactor))
						r.Post("/setup", acc.TwoFactorSetup)
						r.Post("/enable", acc.TwoFactorEnable)
					})
				})
			}
		})
	})

	return r
}
