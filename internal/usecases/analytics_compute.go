package usecases

import (
	"math"
	"sort"
	"time"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

const (
	topSourcesLimit  = 5
	peakBucketsLimit = 5
)

func summarize(rows []domain.DailyLeadMetrics) domain.SummaryMetrics {
	var s domain.SummaryMetrics
	for _, r := range rows {
		s.Leads += r.NewLeads
		s.Won += r.Won
		s.Lost += r.Lost
		s.Revenue += r.RevenueWon
	}
	s.Revenue = round2(s.Revenue)
	s.ConversionRate = percent(s.Won, s.Leads)
	if s.Won > 0 {
		s.AvgDealSize = round2(s.Revenue / float64(s.Won))
	}
	return s
}

// buildFunnel sums stage counts over the period. Each step's rate is relative to the step
// before it; the biggest drop is the step with the lowest such rate.
func buildFunnel(rows []domain.DailyLeadMetrics) domain.ConversionFunnel {
	counts := make(map[domain.Stage]int, len(domain.PipelineStages))
	for _, r := range rows {
		counts[domain.StageNew] += r.NewLeads
		counts[domain.StageContacted] += r.Contacted
		counts[domain.StageQualified] += r.Qualified
		counts[domain.StageProposal] += r.Proposals
		counts[domain.StageNegotiation] += r.Negotiations
		counts[domain.StageWon] += r.Won
	}

	funnel := domain.ConversionFunnel{Stages: make([]domain.FunnelStage, 0, len(domain.PipelineStages))}
	lowest := math.Inf(1)
	for i, stage := range domain.PipelineStages {
		step := domain.FunnelStage{Stage: stage, Count: counts[stage], ConversionRate: 100}
		if i > 0 {
			step.ConversionRate = percent(step.Count, counts[domain.PipelineStages[i-1]])
			if counts[domain.PipelineStages[i-1]] > 0 && step.ConversionRate < lowest {
				lowest = step.ConversionRate
				funnel.BiggestDropAt = stage
			}
		}
		funnel.Stages = append(funnel.Stages, step)
	}
	funnel.OverallRate = percent(counts[domain.StageWon], counts[domain.StageNew])
	return funnel
}

// sourceReport groups by source, highest revenue first.
func sourceReport(rows []domain.SourceDailyMetrics) domain.SourceReport {
	bySource := make(map[string]*domain.SourcePerformance)
	for _, r := range rows {
		sp, ok := bySource[r.Source]
		if !ok {
			sp = &domain.SourcePerformance{Source: r.Source}
			bySource[r.Source] = sp
		}
		sp.Leads += r.Leads
		sp.Won += r.Won
		sp.Revenue += r.Revenue
	}

	report := domain.SourceReport{Sources: make([]domain.SourcePerformance, 0, len(bySource))}
	for _, sp := range bySource {
		sp.Revenue = round2(sp.Revenue)
		sp.ConversionRate = percent(sp.Won, sp.Leads)
		report.Sources = append(report.Sources, *sp)
	}
	sort.Slice(report.Sources, func(i, j int) bool {
		a, b := report.Sources[i], report.Sources[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Source < b.Source
	})
	return report
}

// stageTiming orders rows by pipeline position and names the slowest stage.
func stageTiming(rows []domain.StageTimingRow) domain.StageTiming {
	position := make(map[domain.Stage]int, len(domain.PipelineStages)+1)
	for i, st := range domain.PipelineStages {
		position[st] = i
	}
	position[domain.StageLost] = len(domain.PipelineStages)

	sorted := make([]domain.StageTimingRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return position[sorted[i].Stage] < position[sorted[j].Stage]
	})

	timing := domain.StageTiming{Stages: sorted}
	slowest := -1.0
	for _, r := range sorted {
		if r.Stage == domain.StageWon || r.Stage == domain.StageLost {
			continue
		}
		if r.AvgHours > slowest {
			slowest = r.AvgHours
			timing.Bottleneck = r.Stage
		}
	}
	return timing
}

func behaviorInsights(rows []domain.LeadActivityRow) domain.BehaviorInsights {
	insights := domain.BehaviorInsights{PeakBuckets: make([]domain.ActivityBucket, 0, len(rows))}
	for _, r := range rows {
		insights.TotalInteractions += r.Interactions
		insights.TotalConversions += r.Conversions
		insights.PeakBuckets = append(insights.PeakBuckets, domain.ActivityBucket{
			Weekday:      r.Weekday,
			Hour:         r.Hour,
			Interactions: r.Interactions,
			Conversions:  r.Conversions,
		})
	}
	sort.Slice(insights.PeakBuckets, func(i, j int) bool {
		a, b := insights.PeakBuckets[i], insights.PeakBuckets[j]
		if a.Interactions != b.Interactions {
			return a.Interactions > b.Interactions
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.Hour < b.Hour
	})
	if len(insights.PeakBuckets) > peakBucketsLimit {
		insights.PeakBuckets = insights.PeakBuckets[:peakBucketsLimit]
	}
	return insights
}

// leadTrends returns one point per day in period; days without a row are zero.
func leadTrends(rows []domain.DailyLeadMetrics, period domain.DateRange) domain.LeadTrends {
	byDay := make(map[int64]domain.DailyLeadMetrics, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}

	var trends domain.LeadTrends
	for day := period.From.UTC(); day.Before(period.To); day = day.Add(24 * time.Hour) {
		r := byDay[day.Unix()]
		trends.Points = append(trends.Points, domain.TrendPoint{
			Day:      day,
			NewLeads: r.NewLeads,
			Won:      r.Won,
			Revenue:  round2(r.RevenueWon),
		})
	}
	return trends
}

// monthRange returns [first day of month, first day of next month) in UTC.
func monthRange(year, month int) domain.DateRange {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return domain.DateRange{From: from, To: from.AddDate(0, 1, 0)}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
