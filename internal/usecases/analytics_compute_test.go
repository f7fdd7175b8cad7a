package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

func TestSummarizeWithoutLeads(t *testing.T) {
	s := summarize(nil)
	assert.Equal(t, domain.SummaryMetrics{}, s)
}

func TestBuildFunnel(t *testing.T) {
	funnel := buildFunnel(sampleDaily())
	require.Len(t, funnel.Stages, 6)

	assert.Equal(t, domain.StageNew, funnel.Stages[0].Stage)
	assert.Equal(t, 10, funnel.Stages[0].Count)
	assert.Equal(t, 100.0, funnel.Stages[0].ConversionRate)
	assert.Equal(t, 80.0, funnel.Stages[1].ConversionRate)
	assert.Equal(t, 62.5, funnel.Stages[2].ConversionRate)
	assert.Equal(t, 60.0, funnel.Stages[3].ConversionRate)
	assert.Equal(t, 100.0, funnel.Stages[4].ConversionRate)
	assert.Equal(t, 66.67, funnel.Stages[5].ConversionRate)
	assert.Equal(t, 20.0, funnel.OverallRate)
	assert.Equal(t, domain.StageProposal, funnel.BiggestDropAt)
}

func TestBuildFunnelEmpty(t *testing.T) {
	funnel := buildFunnel(nil)
	assert.Len(t, funnel.Stages, 6)
	assert.Zero(t, funnel.OverallRate)
	assert.Empty(t, funnel.BiggestDropAt)
}

func TestSourceReportOrdering(t *testing.T) {
	report := sourceReport([]domain.SourceDailyMetrics{
		{Source: "ads", Leads: 5, Won: 1, Revenue: 100},
		{Source: "website", Leads: 10, Won: 2, Revenue: 300},
		{Source: "ads", Leads: 5, Won: 1, Revenue: 200},
		{Source: "referral", Leads: 2, Won: 0, Revenue: 0},
		{Source: "events", Leads: 1, Won: 0, Revenue: 0},
	})
	require.Len(t, report.Sources, 4)
	assert.Equal(t, "ads", report.Sources[0].Source)
	assert.Equal(t, 300.0, report.Sources[0].Revenue)
	assert.Equal(t, 20.0, report.Sources[0].ConversionRate)
	assert.Equal(t, "website", report.Sources[1].Source)
	assert.Equal(t, "events", report.Sources[2].Source)
	assert.Equal(t, "referral", report.Sources[3].Source)
}

func TestStageTimingOrderAndBottleneck(t *testing.T) {
	timing := stageTiming([]domain.StageTimingRow{
		{Stage: domain.StageWon, AvgHours: 500},
		{Stage: domain.StageProposal, AvgHours: 72},
		{Stage: domain.StageNew, AvgHours: 4},
		{Stage: domain.StageLost, AvgHours: 900},
	})
	require.Len(t, timing.Stages, 4)
	assert.Equal(t, domain.StageNew, timing.Stages[0].Stage)
	assert.Equal(t, domain.StageLost, timing.Stages[3].Stage)
	assert.Equal(t, domain.StageProposal, timing.Bottleneck)
}

func TestBehaviorInsightsPeaks(t *testing.T) {
	rows := make([]domain.LeadActivityRow, 0, 8)
	for h := 0; h < 8; h++ {
		rows = append(rows, domain.LeadActivityRow{Weekday: 2, Hour: h, Interactions: h, Conversions: 1})
	}
	insights := behaviorInsights(rows)
	require.Len(t, insights.PeakBuckets, peakBucketsLimit)
	assert.Equal(t, 7, insights.PeakBuckets[0].Hour)
	assert.Equal(t, 28, insights.TotalInteractions)
	assert.Equal(t, 8, insights.TotalConversions)
}

func TestLeadTrendsFillsGaps(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	period := domain.LastDays(now, 7)
	day := period.From.AddDate(0, 0, 2)

	trends := leadTrends([]domain.DailyLeadMetrics{{Day: day.Unix(), NewLeads: 3, Won: 1, RevenueWon: 99.999}}, period)
	require.Len(t, trends.Points, 7)
	assert.Equal(t, period.From, trends.Points[0].Day)
	assert.Zero(t, trends.Points[0].NewLeads)
	assert.Equal(t, 3, trends.Points[2].NewLeads)
	assert.Equal(t, 100.0, trends.Points[2].Revenue)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), trends.Points[6].Day)
}

func TestMonthRange(t *testing.T) {
	r := monthRange(2026, 12)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), r.To)
}
