package usecases

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// MockAnalyticsRepository is a mock implementation of AnalyticsRepository
type MockAnalyticsRepository struct {
	mock.Mock
}

var _ domain.AnalyticsRepository = (*MockAnalyticsRepository)(nil)

func (m *MockAnalyticsRepository) DailyMetrics(ctx context.Context, orgID string, period domain.DateRange) ([]domain.DailyLeadMetrics, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DailyLeadMetrics), args.Error(1)
}

func (m *MockAnalyticsRepository) SourceMetrics(ctx context.Context, orgID string, period domain.DateRange) ([]domain.SourceDailyMetrics, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SourceDailyMetrics), args.Error(1)
}

func (m *MockAnalyticsRepository) StageTimings(ctx context.Context, orgID string) ([]domain.StageTimingRow, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StageTimingRow), args.Error(1)
}

func (m *MockAnalyticsRepository) LeadActivity(ctx context.Context, orgID string) ([]domain.LeadActivityRow, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LeadActivityRow), args.Error(1)
}

func (m *MockAnalyticsRepository) ViewsRefreshedAt(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockLeadRepository is a mock implementation of LeadRepository
type MockLeadRepository struct {
	mock.Mock
}

var _ domain.LeadRepository = (*MockLeadRepository)(nil)

func (m *MockLeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *MockLeadRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Lead, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *MockLeadRepository) Delete(ctx context.Context, orgID, id string) error {
	return m.Called(ctx, orgID, id).Error(0)
}

func (m *MockLeadRepository) List(ctx context.Context, orgID string, filter domain.LeadFilter, params domain.PaginationParams) (*domain.PaginatedLeads, error) {
	args := m.Called(ctx, orgID, filter, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaginatedLeads), args.Error(1)
}

func (m *MockLeadRepository) RecordStageEvent(ctx context.Context, event *domain.StageEvent) error {
	return m.Called(ctx, event).Error(0)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mock.Mock
}

var _ domain.EventPublisher = (*MockEventPublisher)(nil)

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.Event) {
	m.Called(ctx, event)
}

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

var _ domain.SubscriptionRepository = (*MockSubscriptionRepository)(nil)

func (m *MockSubscriptionRepository) Get(ctx context.Context, orgID string) (*domain.Subscription, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

var _ domain.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Subscribe(ctx context.Context, orgID, customerID, planCode string) (*domain.GatewaySubscription, error) {
	args := m.Called(ctx, orgID, customerID, planCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewaySubscription), args.Error(1)
}

func (m *MockPaymentGateway) Cancel(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

// MockPreferencesRepository is a mock implementation of PreferencesRepository
type MockPreferencesRepository struct {
	mock.Mock
}

var _ domain.PreferencesRepository = (*MockPreferencesRepository)(nil)

func (m *MockPreferencesRepository) Get(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPreferences), args.Error(1)
}

func (m *MockPreferencesRepository) Save(ctx context.Context, prefs *domain.UserPreferences) error {
	return m.Called(ctx, prefs).Error(0)
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

var _ domain.HealthChecker = (*MockHealthChecker)(nil)

func (m *MockHealthChecker) CheckConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockHealthChecker) EnsureCollections(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// memoryTwoFactorRepository keeps credentials in a map
type memoryTwoFactorRepository struct {
	creds map[string]domain.TwoFactorCredential
}

func newMemoryTwoFactorRepository() *memoryTwoFactorRepository {
	return &memoryTwoFactorRepository{creds: make(map[string]domain.TwoFactorCredential)}
}

func (r *memoryTwoFactorRepository) Get(ctx context.Context, userID string) (*domain.TwoFactorCredential, error) {
	c, ok := r.creds[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.BackupCodeHashes = append([]string(nil), c.BackupCodeHashes...)
	return &c, nil
}

func (r *memoryTwoFactorRepository) Save(ctx context.Context, cred *domain.TwoFactorCredential) error {
	c := *cred
	c.BackupCodeHashes = append([]string(nil), cred.BackupCodeHashes...)
	r.creds[cred.UserID] = c
	return nil
}

func (r *memoryTwoFactorRepository) Delete(ctx context.Context, userID string) error {
	delete(r.creds, userID)
	return nil
}
