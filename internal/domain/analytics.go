package domain

import "time"

// Rows of the pre-aggregated views. The views are refreshed by the database side;
// this service only reads them.

// DailyLeadMetrics is one row of mv_daily_lead_metrics
type DailyLeadMetrics struct {
	ID             string  `json:"id" reindex:"id,,pk"`
	OrganizationID string  `json:"organization_id" reindex:"organization_id"`
	Day            int64   `json:"day" reindex:"day"` // unix seconds at 00:00 UTC
	NewLeads       int     `json:"new_leads"`
	Contacted      int     `json:"contacted"`
	Qualified      int     `json:"qualified"`
	Proposals      int     `json:"proposals"`
	Negotiations   int     `json:"negotiations"`
	Won            int     `json:"won"`
	Lost           int     `json:"lost"`
	RevenueWon     float64 `json:"revenue_won"`
}

// SourceDailyMetrics is one row of mv_source_performance
type SourceDailyMetrics struct {
	ID             string  `json:"id" reindex:"id,,pk"`
	OrganizationID string  `json:"organization_id" reindex:"organization_id"`
	Day            int64   `json:"day" reindex:"day"`
	Source         string  `json:"source" reindex:"source"`
	Leads          int     `json:"leads"`
	Won            int     `json:"won"`
	Revenue        float64 `json:"revenue"`
}

// StageTimingRow is one row of mv_stage_timing
type StageTimingRow struct {
	ID             string  `json:"id" reindex:"id,,pk"`
	OrganizationID string  `json:"organization_id" reindex:"organization_id"`
	Stage          Stage   `json:"stage" reindex:"stage"`
	AvgHours       float64 `json:"avg_hours"`
	MedianHours    float64 `json:"median_hours"`
	Samples        int     `json:"samples"`
}

// LeadActivityRow is one row of mv_lead_activity (per weekday/hour bucket)
type LeadActivityRow struct {
	ID             string `json:"id" reindex:"id,,pk"`
	OrganizationID string `json:"organization_id" reindex:"organization_id"`
	Weekday        int    `json:"weekday"`
	Hour           int    `json:"hour"`
	Interactions   int    `json:"interactions"`
	Conversions    int    `json:"conversions"`
}

// ViewRefresh is one row of mv_refresh_log
type ViewRefresh struct {
	View        string `json:"view" reindex:"view,,pk"`
	RefreshedAt int64  `json:"refreshed_at"`
}

// DateRange is a half-open [From, To) window
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LastDays returns the range covering the previous n days up to now
func LastDays(now time.Time, n int) DateRange {
	to := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	return DateRange{From: to.AddDate(0, 0, -n), To: to}
}

// SummaryMetrics aggregates headline numbers
type SummaryMetrics struct {
	Leads          int     `json:"leads"`
	Won            int     `json:"won"`
	Lost           int     `json:"lost"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
	AvgDealSize    float64 `json:"avg_deal_size"`
}

// FunnelStage is one step in the conversion funnel
type FunnelStage struct {
	Stage          Stage   `json:"stage"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"` // relative to the previous step
}

// ConversionFunnel lists steps in pipeline order
type ConversionFunnel struct {
	Stages        []FunnelStage `json:"stages"`
	OverallRate   float64       `json:"overall_rate"`
	BiggestDropAt Stage         `json:"biggest_drop_at,omitempty"`
}

// SourcePerformance summarises one lead source
type SourcePerformance struct {
	Source         string  `json:"source"`
	Leads          int     `json:"leads"`
	Won            int     `json:"won"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
}

// SourceReport wraps per-source rows sorted by revenue
type SourceReport struct {
	Sources []SourcePerformance `json:"sources"`
}

// StageTiming reports dwell time per stage
type StageTiming struct {
	Stages     []StageTimingRow `json:"stages"`
	Bottleneck Stage            `json:"bottleneck,omitempty"`
}

// ActivityBucket is a weekday/hour slot
type ActivityBucket struct {
	Weekday      int `json:"weekday"`
	Hour         int `json:"hour"`
	Interactions int `json:"interactions"`
	Conversions  int `json:"conversions"`
}

// BehaviorInsights describes when leads engage and convert
type BehaviorInsights struct {
	PeakBuckets       []ActivityBucket `json:"peak_buckets"`
	TotalInteractions int              `json:"total_interactions"`
	TotalConversions  int              `json:"total_conversions"`
}

// TrendPoint is one day in a time series
type TrendPoint struct {
	Day      time.Time `json:"day"`
	NewLeads int       `json:"new_leads"`
	Won      int       `json:"won"`
	Revenue  float64   `json:"revenue"`
}

// LeadTrends is a daily series
type LeadTrends struct {
	Points []TrendPoint `json:"points"`
}

// MonthlyReport is a point-in-time report for one calendar month
type MonthlyReport struct {
	Year    int                 `json:"year"`
	Month   int                 `json:"month"`
	Summary SummaryMetrics      `json:"summary"`
	Funnel  ConversionFunnel    `json:"funnel"`
	Sources []SourcePerformance `json:"sources"`
}

// ExecutiveDashboard combines the headline views
type ExecutiveDashboard struct {
	Summary    SummaryMetrics      `json:"summary"`
	Funnel     ConversionFunnel    `json:"funnel"`
	TopSources []SourcePerformance `json:"top_sources"`
	Period     DateRange           `json:"period"`
}
