package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/restream/reindexer/v4"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// LeadRepository хранит лиды и историю переходов по стадиям.
// Все запросы ограничены организацией.
type LeadRepository struct {
	db     *ReindexerDB
	logger *zap.Logger
}

func NewLeadRepository(db *ReindexerDB, logger *zap.Logger) *LeadRepository {
	return &LeadRepository{db: db, logger: logger}
}

// Create сохраняет новый лид.
func (r *LeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	if err := r.db.upsert(ctx, leadsNamespace, lead); err != nil {
		r.logger.Error("ошибка создания лида",
			zap.String("id", lead.ID),
			zap.String("organization_id", lead.OrganizationID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// GetByID ищет лид внутри организации. Чужой лид неотличим от отсутствующего.
func (r *LeadRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Lead, error) {
	lead, err := queryOne[domain.Lead](ctx, r.db, leadsNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("id", reindexer.EQ, id).
			Where("organization_id", reindexer.EQ, orgID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("лид %s: %w", id, domain.ErrNotFound)
	}
	return lead, err
}

// Update перезаписывает лид целиком.
func (r *LeadRepository) Update(ctx context.Context, lead *domain.Lead) error {
	if err := r.db.upsert(ctx, leadsNamespace, lead); err != nil {
		r.logger.Error("ошибка обновления лида",
			zap.String("id", lead.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Delete удаляет лид организации.
func (r *LeadRepository) Delete(ctx context.Context, orgID, id string) error {
	n, err := r.db.deleteWhere(ctx, leadsNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("id", reindexer.EQ, id).
			Where("organization_id", reindexer.EQ, orgID)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("лид %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List возвращает страницу лидов, новые сверху.
func (r *LeadRepository) List(ctx context.Context, orgID string, filter domain.LeadFilter, params domain.PaginationParams) (*domain.PaginatedLeads, error) {
	leads, total, err := queryAll[domain.Lead](ctx, r.db, leadsNamespace, func(q *reindexer.Query) *reindexer.Query {
		q = q.Where("organization_id", reindexer.EQ, orgID)
		if filter.Stage != "" {
			q = q.Where("stage", reindexer.EQ, string(filter.Stage))
		}
		if filter.Source != "" {
			q = q.Where("source", reindexer.EQ, filter.Source)
		}
		return q.Sort("created_at", true).
			ReqTotal().
			Limit(params.Limit).
			Offset(params.Offset)
	})
	if err != nil {
		return nil, err
	}

	items := make([]*domain.Lead, len(leads))
	for i := range leads {
		items[i] = &leads[i]
	}

	return &domain.PaginatedLeads{
		Items:   items,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(items) < total,
	}, nil
}

// RecordStageEvent дописывает переход в журнал stage_events.
func (r *LeadRepository) RecordStageEvent(ctx context.Context, event *domain.StageEvent) error {
	return r.db.upsert(ctx, stageEventsNamespace, event)
}

var _ domain.LeadRepository = (*LeadRepository)(nil)
