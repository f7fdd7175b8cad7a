package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/restream/reindexer/v4"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// AnalyticsRepository читает предагрегированные представления mv_*.
type AnalyticsRepository struct {
	db *ReindexerDB
}

func NewAnalyticsRepository(db *ReindexerDB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// DailyMetrics возвращает дневные строки за период, по возрастанию даты.
func (r *AnalyticsRepository) DailyMetrics(ctx context.Context, orgID string, period domain.DateRange) ([]domain.DailyLeadMetrics, error) {
	rows, _, err := queryAll[domain.DailyLeadMetrics](ctx, r.db, dailyMetricsNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("organization_id", reindexer.EQ, orgID).
			Where("day", reindexer.GE, period.From.Unix()).
			Where("day", reindexer.LT, period.To.Unix()).
			Sort("day", false)
	})
	return rows, err
}

// SourceMetrics возвращает строки по источникам за период.
func (r *AnalyticsRepository) SourceMetrics(ctx context.Context, orgID string, period domain.DateRange) ([]domain.SourceDailyMetrics, error) {
	rows, _, err := queryAll[domain.SourceDailyMetrics](ctx, r.db, sourceMetricsNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("organization_id", reindexer.EQ, orgID).
			Where("day", reindexer.GE, period.From.Unix()).
			Where("day", reindexer.LT, period.To.Unix())
	})
	return rows, err
}

// StageTimings возвращает время пребывания на каждой стадии.
func (r *AnalyticsRepository) StageTimings(ctx context.Context, orgID string) ([]domain.StageTimingRow, error) {
	rows, _, err := queryAll[domain.StageTimingRow](ctx, r.db, stageTimingNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("organization_id", reindexer.EQ, orgID)
	})
	return rows, err
}

// LeadActivity возвращает активность по слотам день недели/час.
func (r *AnalyticsRepository) LeadActivity(ctx context.Context, orgID string) ([]domain.LeadActivityRow, error) {
	rows, _, err := queryAll[domain.LeadActivityRow](ctx, r.db, leadActivityNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("organization_id", reindexer.EQ, orgID)
	})
	return rows, err
}

// ViewsRefreshedAt возвращает самое старое время обновления среди представлений.
// Пустой журнал означает, что представления еще ни разу не обновлялись.
func (r *AnalyticsRepository) ViewsRefreshedAt(ctx context.Context) (time.Time, error) {
	rows, _, err := queryAll[domain.ViewRefresh](ctx, r.db, refreshLogNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q
	})
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, fmt.Errorf("журнал обновлений пуст: %w", domain.ErrNotFound)
	}

	oldest := rows[0].RefreshedAt
	for _, row := range rows[1:] {
		if row.RefreshedAt < oldest {
			oldest = row.RefreshedAt
		}
	}
	return time.Unix(oldest, 0).UTC(), nil
}

var _ domain.AnalyticsRepository = (*AnalyticsRepository)(nil)
