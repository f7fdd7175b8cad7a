package domain

import (
	"context"
	"time"
)

// LeadRepository defines lead persistence
type LeadRepository interface {
	Create(ctx context.Context, lead *Lead) error
	GetByID(ctx context.Context, orgID, id string) (*Lead, error)
	Update(ctx context.Context, lead *Lead) error
	Delete(ctx context.Context, orgID, id string) error
	List(ctx context.Context, orgID string, filter LeadFilter, params PaginationParams) (*PaginatedLeads, error)
	RecordStageEvent(ctx context.Context, event *StageEvent) error
}

// AnalyticsRepository reads the pre-aggregated analytics views
type AnalyticsRepository interface {
	DailyMetrics(ctx context.Context, orgID string, period DateRange) ([]DailyLeadMetrics, error)
	SourceMetrics(ctx context.Context, orgID string, period DateRange) ([]SourceDailyMetrics, error)
	StageTimings(ctx context.Context, orgID string) ([]StageTimingRow, error)
	LeadActivity(ctx context.Context, orgID string) ([]LeadActivityRow, error)
	// ViewsRefreshedAt returns the oldest refresh time across all views.
	ViewsRefreshedAt(ctx context.Context) (time.Time, error)
}

// SubscriptionRepository stores one subscription per organization
type SubscriptionRepository interface {
	Get(ctx context.Context, orgID string) (*Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
}

// PreferencesRepository stores user preferences
type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*UserPreferences, error)
	Save(ctx context.Context, prefs *UserPreferences) error
}

// TwoFactorRepository stores TOTP credentials
type TwoFactorRepository interface {
	Get(ctx context.Context, userID string) (*TwoFactorCredential, error)
	Save(ctx context.Context, cred *TwoFactorCredential) error
	Delete(ctx context.Context, userID string) error
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the database connection is healthy
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/namespaces exist
	EnsureCollections(ctx context.Context) error
}
