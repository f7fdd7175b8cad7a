package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/twofactor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
)

// MockAnalyticsService is a mock implementation of AnalyticsService
type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) Summary(ctx context.Context, q usecases.AnalyticsQuery) (domain.SummaryMetrics, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.SummaryMetrics), args.Error(1)
}

func (m *MockAnalyticsService) Funnel(ctx context.Context, q usecases.AnalyticsQuery) (domain.ConversionFunnel, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.ConversionFunnel), args.Error(1)
}

func (m *MockAnalyticsService) Sources(ctx context.Context, q usecases.AnalyticsQuery) (domain.SourceReport, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.SourceReport), args.Error(1)
}

func (m *MockAnalyticsService) Trends(ctx context.Context, q usecases.AnalyticsQuery) (domain.LeadTrends, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.LeadTrends), args.Error(1)
}

func (m *MockAnalyticsService) StageTiming(ctx context.Context, q usecases.AnalyticsQuery) (domain.StageTiming, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.StageTiming), args.Error(1)
}

func (m *MockAnalyticsService) BehaviorInsights(ctx context.Context, q usecases.AnalyticsQuery) (domain.BehaviorInsights, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.BehaviorInsights), args.Error(1)
}

func (m *MockAnalyticsService) MonthlyReport(ctx context.Context, q usecases.AnalyticsQuery) (domain.MonthlyReport, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.MonthlyReport), args.Error(1)
}

func (m *MockAnalyticsService) ExecutiveDashboard(ctx context.Context, q usecases.AnalyticsQuery) (domain.ExecutiveDashboard, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.ExecutiveDashboard), args.Error(1)
}

func (m *MockAnalyticsService) CacheStats(ctx context.Context, orgID string) *cache.Stats {
	return m.Called(ctx, orgID).Get(0).(*cache.Stats)
}

func (m *MockAnalyticsService) InvalidateOrganization(ctx context.Context, orgID string) (int64, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAnalyticsService) Performance() monitor.Snapshot {
	return m.Called().Get(0).(monitor.Snapshot)
}

func (m *MockAnalyticsService) ResetPerformance() {
	m.Called()
}

// MockLeadService is a mock implementation of LeadService
type MockLeadService struct {
	mock.Mock
}

func (m *MockLeadService) CreateLead(ctx context.Context, orgID string, in usecases.LeadInput) (*domain.Lead, error) {
	args := m.Called(ctx, orgID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadService) GetLead(ctx context.Context, orgID, id string) (*domain.Lead, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadService) ListLeads(ctx context.Context, orgID string, filter domain.LeadFilter, params domain.PaginationParams) (*domain.PaginatedLeads, error) {
	args := m.Called(ctx, orgID, filter, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaginatedLeads), args.Error(1)
}

func (m *MockLeadService) UpdateLead(ctx context.Context, orgID, id string, in usecases.LeadInput) (*domain.Lead, error) {
	args := m.Called(ctx, orgID, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadService) ChangeStage(ctx context.Context, orgID, id string, to domain.Stage) (*domain.Lead, error) {
	args := m.Called(ctx, orgID, id, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadService) DeleteLead(ctx context.Context, orgID, id string) error {
	return m.Called(ctx, orgID, id).Error(0)
}

// MockTwoFactorService is a mock implementation of TwoFactorService
type MockTwoFactorService struct {
	mock.Mock
}

func (m *MockTwoFactorService) Setup(ctx context.Context, userID, account string) (*twofactor.Enrollment, error) {
	args := m.Called(ctx, userID, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*twofactor.Enrollment), args.Error(1)
}

func (m *MockTwoFactorService) Enable(ctx context.Context, userID, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, userID, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}

func (m *MockTwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	args := m.Called(ctx, userID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*usecases.TwoFactorStatus, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecases.TwoFactorStatus), args.Error(1)
}

type planFeatures map[string][]string

func (p planFeatures) Require(_ context.Context, orgID, feature string) error {
	for _, f := range p[orgID] {
		if f == feature {
			return nil
		}
	}
	return domain.ErrFeatureNotAvailable
}

type stubHealth struct {
	status monitor.HealthStatus
}

func (s stubHealth) Check(context.Context) *usecases.HealthReport {
	return &usecases.HealthReport{Status: s.status, Checks: map[string]usecases.CheckResult{}}
}

const testSecret = "0123456789abcdef0123456789abcdef"

type routerFixture struct {
	handler   http.Handler
	auth      *middleware.Authenticator
	analytics *MockAnalyticsService
	leads     *MockLeadService
	twoFactor *MockTwoFactorService
	health    *stubHealth
}

func newRouterFixture(t *testing.T) *routerFixture {
	logger := zaptest.NewLogger(t)
	f := &routerFixture{
		auth:      middleware.NewAuthenticator(testSecret, "lovedcrm", logger),
		analytics: new(MockAnalyticsService),
		leads:     new(MockLeadService),
		twoFactor: new(MockTwoFactorService),
		health:    &stubHealth{status: monitor.StatusHealthy},
	}

	features := planFeatures{
		"org-pro": {domain.FeatureAdvancedAnalytics, domain.FeatureMonthlyReports, domain.FeatureTwoFactor},
	}

	f.handler = NewRouter(RouterConfig{
		Analytics: NewAnalyticsHandler(f.analytics, logger),
		Leads:     NewLeadHandler(f.leads, logger),
		Account:   NewAccountHandler(nil, nil, f.twoFactor, logger),
		Health:    NewHealthHandler(f.health, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Auth:           f.auth,
		Features:       features,
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		Logger:         logger,
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, path, orgID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if orgID != "" {
		token, err := f.auth.Issue("user-1", orgID, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSummaryQueryParams(t *testing.T) {
	f := newRouterFixture(t)

	want := usecases.AnalyticsQuery{OrganizationID: "org-1", Days: 7, FreshnessHours: 4, ForceRefresh: true}
	f.analytics.On("Summary", mock.Anything, want).Return(domain.SummaryMetrics{Leads: 10}, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/summary?days=7&freshness_hours=4&force_refresh=true", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.SummaryMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 10, got.Leads)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	f.analytics.AssertExpectations(t)
}

func TestAnalyticsErrors(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/summary?days=abc", "org-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.analytics.On("Funnel", mock.Anything, mock.Anything).Return(domain.ConversionFunnel{}, domain.ErrInvalidInput)
	rec = f.do(t, http.MethodGet, "/api/v1/analytics/funnel?days=9000", "org-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.analytics.On("ExecutiveDashboard", mock.Anything, mock.Anything).Return(domain.ExecutiveDashboard{}, assert.AnError)
	rec = f.do(t, http.MethodGet, "/api/v1/analytics/dashboard", "org-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestAnalyticsRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/summary", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	f.analytics.AssertNotCalled(t, "Summary", mock.Anything, mock.Anything)
}

// TestFeatureGatedRoutes tests that plan features guard the advanced views
func TestFeatureGatedRoutes(t *testing.T) {
	f := newRouterFixture(t)

	f.analytics.On("MonthlyReport", mock.Anything, usecases.AnalyticsQuery{OrganizationID: "org-pro", Year: 2026, Month: 9}).
		Return(domain.MonthlyReport{}, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/reports/monthly?year=2026&month=9", "org-free", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/analytics/reports/monthly?year=2026&month=9", "org-pro", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/analytics/behavior", "org-pro", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	f.analytics.On("CacheStats", mock.Anything, "org-1").Return(&cache.Stats{Available: true, HitRate: 75})
	f.analytics.On("InvalidateOrganization", mock.Anything, "org-1").Return(int64(3), nil).Once()
	f.analytics.On("InvalidateOrganization", mock.Anything, "org-2").Return(int64(0), cache.ErrStoreUnavailable).Once()

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/cache/stats", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hit_rate":75`)

	rec = f.do(t, http.MethodDelete, "/api/v1/analytics/cache", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"organization_id":"org-1","deleted_keys":3}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/v1/analytics/cache", "org-2", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPerformanceEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	f.analytics.On("Performance").Return(monitor.Snapshot{TotalQueries: 10, Errors: 1, ErrorPercentage: 10})
	f.analytics.On("ResetPerformance").Return()

	rec := f.do(t, http.MethodGet, "/api/v1/analytics/performance", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)

	rec = f.do(t, http.MethodPost, "/api/v1/analytics/performance/reset", "org-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	f.analytics.AssertCalled(t, "ResetPerformance")
}

func TestLeadRoutes(t *testing.T) {
	f := newRouterFixture(t)

	created := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Name: "Acme", Stage: domain.StageNew}
	f.leads.On("CreateLead", mock.Anything, "org-1", usecases.LeadInput{Name: "Acme", Source: "website", Value: amount(100)}).Return(created, nil)
	f.leads.On("GetLead", mock.Anything, "org-1", "missing").Return(nil, domain.ErrNotFound)
	f.leads.On("UpdateLead", mock.Anything, "org-1", "lead-1", usecases.LeadInput{Value: amount(0)}).Return(created, nil)
	f.leads.On("ChangeStage", mock.Anything, "org-1", "lead-1", domain.StageContacted).Return(created, nil)
	f.leads.On("ListLeads", mock.Anything, "org-1", domain.LeadFilter{Stage: domain.StageNew}, domain.PaginationParams{Limit: 10, Offset: 10}).
		Return(&domain.PaginatedLeads{Items: []*domain.Lead{created}, Total: 21, Limit: 10, Offset: 10, HasMore: true}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/leads", "org-1", `{"name":"Acme","source":"website","value":100}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/leads", "org-1", `{"source":"website"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/leads", "org-1", `{"name":"Acme","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/leads/missing", "org-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/leads/lead-1", "org-1", `{"value":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/leads/lead-1", "org-1", `{"value":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/leads/lead-1/stage", "org-1", `{"stage":"contacted"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/leads?stage=new&page=2&per_page=10", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Pagination struct {
			TotalPages int  `json:"total_pages"`
			HasMore    bool `json:"has_more"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasMore)

	rec = f.do(t, http.MethodGet, "/api/v1/leads?page=0", "org-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.leads.AssertExpectations(t)
}

func TestTwoFactorRoutes(t *testing.T) {
	f := newRouterFixture(t)

	f.twoFactor.On("Verify", mock.Anything, "user-1", "123456").Return(twofactor.ErrInvalidCode)
	f.twoFactor.On("Setup", mock.Anything, "user-1", "user-1").Return(&twofactor.Enrollment{Secret: "ABC"}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/2fa/verify", "org-1", `{"code":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/2fa/verify", "org-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/2fa/setup", "org-1", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/2fa/setup", "org-pro", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health.status = monitor.StatusDegraded
	rec = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health.status = monitor.StatusUnhealthy
	rec = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, "# metrics", rec.Body.String())
}

func amount(v float64) *float64 { return &v }
