package cache

import (
	"math"
	"sort"
)

// Operation names with their own TTL policy
const (
	OpExecutiveDashboard = "executive_dashboard"
	OpSummaryMetrics     = "summary_metrics"
	OpConversionFunnel   = "conversion_funnel"
	OpLeadTrends         = "lead_trends"
	OpSourcePerformance  = "source_performance"
	OpStageTiming        = "stage_timing"
	OpBehaviorInsights   = "behavior_insights"
	OpMonthlyReport      = "monthly_report"
)

// DefaultBaseTTL applies to operations missing from the table, in seconds.
const DefaultBaseTTL = 600

const (
	freshnessPivotHours = 4.0
	minMultiplier       = 0.5
	maxMultiplier       = 2.0
)

var baseTTLs = map[string]int{
	OpExecutiveDashboard: 300,
	OpSummaryMetrics:     600,
	OpConversionFunnel:   900,
	OpLeadTrends:         900,
	OpSourcePerformance:  1800,
	OpStageTiming:        1800,
	OpBehaviorInsights:   3600,
	OpMonthlyReport:      3600,
}

// BaseTTL returns the table entry for operation, or DefaultBaseTTL.
func BaseTTL(operation string) int {
	if ttl, ok := baseTTLs[operation]; ok {
		return ttl
	}
	return DefaultBaseTTL
}

// TTLSeconds is base * clamp(freshnessHours/4, 0.5, 2.0), truncated.
func TTLSeconds(operation string, freshnessHours float64) int {
	return int(float64(BaseTTL(operation)) * freshnessMultiplier(freshnessHours))
}

// KnownOperation reports whether operation has its own table entry.
func KnownOperation(operation string) bool {
	_, ok := baseTTLs[operation]
	return ok
}

// KnownOperations lists the table keys in sorted order.
func KnownOperations() []string {
	ops := make([]string, 0, len(baseTTLs))
	for op := range baseTTLs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func freshnessMultiplier(freshnessHours float64) float64 {
	if math.IsNaN(freshnessHours) {
		return minMultiplier
	}
	m := freshnessHours / freshnessPivotHours
	if m < minMultiplier {
		return minMultiplier
	}
	if m > maxMultiplier {
		return maxMultiplier
	}
	return m
}
