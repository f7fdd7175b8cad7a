package domain

import (
	"context"
	"errors"
	"time"
)

// Feature names checked by the feature gate
const (
	FeatureAdvancedAnalytics = "advanced_analytics"
	FeatureMonthlyReports    = "monthly_reports"
	FeatureBehaviorInsights  = "behavior_insights"
	FeatureAPIAccess         = "api_access"
	FeatureTwoFactor         = "two_factor"
)

// Plan is a billing tier
type Plan struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	MaxLeads   int      `json:"max_leads"` // 0 = unlimited
	MaxUsers   int      `json:"max_users"`
	Features   []string `json:"features"`
}

// Has reports whether the plan includes feature
func (p Plan) Has(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// SubscriptionStatus mirrors the payment processor's lifecycle
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription binds an organization to a plan
type Subscription struct {
	OrganizationID         string             `json:"organization_id" reindex:"organization_id,,pk"`
	PlanCode               string             `json:"plan_code" reindex:"plan_code"`
	Status                 SubscriptionStatus `json:"status" reindex:"status"`
	ExternalCustomerID     string             `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string             `json:"external_subscription_id,omitempty"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// UserPreferences holds per-user UI and notification settings
type UserPreferences struct {
	UserID               string    `json:"user_id" reindex:"user_id,,pk"`
	OrganizationID       string    `json:"organization_id" reindex:"organization_id"`
	Theme                string    `json:"theme" validate:"oneof=light dark system"`
	Language             string    `json:"language" validate:"required,bcp47_language_tag"`
	Timezone             string    `json:"timezone" validate:"required,timezone"`
	EmailNotifications   bool      `json:"email_notifications"`
	PushNotifications    bool      `json:"push_notifications"`
	WeeklyDigest         bool      `json:"weekly_digest"`
	DefaultDashboardDays int       `json:"default_dashboard_days" validate:"oneof=7 14 30 90"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings a user starts with
func DefaultPreferences(userID, orgID string) *UserPreferences {
	return &UserPreferences{
		UserID:               userID,
		OrganizationID:       orgID,
		Theme:                "system",
		Language:             "en",
		Timezone:             "UTC",
		EmailNotifications:   true,
		PushNotifications:    false,
		WeeklyDigest:         true,
		DefaultDashboardDays: 30,
	}
}

// TwoFactorCredential is a user's TOTP enrolment
type TwoFactorCredential struct {
	UserID           string     `json:"user_id" reindex:"user_id,,pk"`
	Secret           string     `json:"secret"`
	Enabled          bool       `json:"enabled" reindex:"enabled"`
	BackupCodeHashes []string   `json:"backup_code_hashes"`
	LastUsedStep     int64      `json:"last_used_step"`
	CreatedAt        time.Time  `json:"created_at"`
	EnabledAt        *time.Time `json:"enabled_at,omitempty"`
}

// GatewaySubscription is the payment processor's view of a subscription
type GatewaySubscription struct {
	CustomerID       string             `json:"customer_id"`
	SubscriptionID   string             `json:"subscription_id"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time          `json:"current_period_end"`
}

// PaymentGateway talks to the external payment processor
type PaymentGateway interface {
	Subscribe(ctx context.Context, orgID, customerID, planCode string) (*GatewaySubscription, error)
	Cancel(ctx context.Context, subscriptionID string) error
}

// ErrPaymentUnavailable is returned when the processor cannot be reached
var ErrPaymentUnavailable = errors.New("payment processor unavailable")
