package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// LeadInput: изменяемые поля лида. Value равен nil, если клиент его не передал,
// а 0 сбрасывает сумму.
type LeadInput struct {
	Name   string       `json:"name" validate:"required,max=200"`
	Email  string       `json:"email" validate:"omitempty,email"`
	Source string       `json:"source" validate:"required,max=64"`
	Stage  domain.Stage `json:"stage"`
	Value  *float64     `json:"value,omitempty" validate:"omitempty,gte=0"`
}

func (in LeadInput) value() float64 {
	if in.Value == nil {
		return 0
	}
	return *in.Value
}

// LeadUsecase управляет лидами. После каждой успешной записи публикуется доменное
// событие, по которому инвалидируется кэш аналитики.
type LeadUsecase struct {
	repo      domain.LeadRepository
	publisher domain.EventPublisher
	limiter   *RateLimiter
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewLeadUsecase(
	repo domain.LeadRepository,
	publisher domain.EventPublisher,
	logger *zap.Logger,
	maxConcurrentOps int,
	clock clockwork.Clock,
) *LeadUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LeadUsecase{
		repo:      repo,
		publisher: publisher,
		limiter:   NewRateLimiter(maxConcurrentOps),
		clock:     clock,
		logger:    logger,
	}
}

// CreateLead создает лид в стадии new, если стадия не указана.
func (u *LeadUsecase) CreateLead(ctx context.Context, orgID string, in LeadInput) (*domain.Lead, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if in.Stage == "" {
		in.Stage = domain.StageNew
	}
	if !in.Stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q: %w", in.Stage, domain.ErrInvalidInput)
	}

	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.limiter.Release()

	now := u.clock.Now().UTC()
	lead := &domain.Lead{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(in.Name),
		Email:          in.Email,
		Source:         in.Source,
		Stage:          in.Stage,
		Value:          in.value(),
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}

	if err := u.repo.Create(ctx, lead); err != nil {
		u.logger.Error("ошибка создания лида в БД",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return nil, err
	}

	u.publish(ctx, domain.EventLeadCreated, lead)
	u.logger.Info("лид создан",
		zap.String("id", lead.ID),
		zap.String("organization_id", orgID),
	)
	return lead, nil
}

func (u *LeadUsecase) GetLead(ctx context.Context, orgID, id string) (*domain.Lead, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.limiter.Release()

	return u.repo.GetByID(ctx, orgID, id)
}

// ListLeads нормализует пагинацию: лимит по умолчанию 20, максимум 100.
func (u *LeadUsecase) ListLeads(ctx context.Context, orgID string, filter domain.LeadFilter, params domain.PaginationParams) (*domain.PaginatedLeads, error) {
	if params.Limit <= 0 {
		params.Limit = defaultPageLimit
	}
	if params.Limit > maxPageLimit {
		params.Limit = maxPageLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	if filter.Stage != "" && !filter.Stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q: %w", filter.Stage, domain.ErrInvalidInput)
	}

	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.limiter.Release()

	return u.repo.List(ctx, orgID, filter, params)
}

// UpdateLead меняет описательные поля. Стадия меняется только через ChangeStage.
func (u *LeadUsecase) UpdateLead(ctx context.Context, orgID, id string, in LeadInput) (*domain.Lead, error) {
	lead, err := u.GetLead(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		lead.Name = name
	}
	if in.Email != "" {
		lead.Email = in.Email
	}
	if in.Source != "" {
		lead.Source = in.Source
	}
	if in.Value != nil {
		lead.Value = *in.Value
	}
	lead.UpdatedAt = u.clock.Now().UTC()

	if err := u.repo.Update(ctx, lead); err != nil {
		u.logger.Error("ошибка обновления лида в БД",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, err
	}

	u.publish(ctx, domain.EventLeadUpdated, lead)
	return lead, nil
}

// ChangeStage переводит лид в другую стадию и пишет переход в журнал.
// Переход в ту же стадию ничего не делает и событий не порождает.
func (u *LeadUsecase) ChangeStage(ctx context.Context, orgID, id string, to domain.Stage) (*domain.Lead, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown stage %q: %w", to, domain.ErrInvalidInput)
	}

	lead, err := u.GetLead(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if lead.Stage == to {
		return lead, nil
	}

	now := u.clock.Now().UTC()
	event := &domain.StageEvent{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		LeadID:         lead.ID,
		FromStage:      lead.Stage,
		ToStage:        to,
		OccurredAt:     now,
	}

	lead.Stage = to
	lead.StageChangedAt = now
	lead.UpdatedAt = now

	if err := u.repo.Update(ctx, lead); err != nil {
		u.logger.Error("ошибка смены стадии",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if err := u.repo.RecordStageEvent(ctx, event); err != nil {
		// Лид уже обновлен, журнал переходов догонит при следующем обновлении представлений.
		u.logger.Warn("не удалось записать переход стадии",
			zap.String("lead_id", id),
			zap.Error(err),
		)
	}

	u.publish(ctx, domain.EventStageChange, lead)
	u.logger.Info("стадия лида изменена",
		zap.String("id", id),
		zap.String("from", string(event.FromStage)),
		zap.String("to", string(to)),
	)
	return lead, nil
}

func (u *LeadUsecase) DeleteLead(ctx context.Context, orgID, id string) error {
	if err := u.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("превышен лимит запросов: %w", err)
	}
	defer u.limiter.Release()

	if err := u.repo.Delete(ctx, orgID, id); err != nil {
		return err
	}

	u.publish(ctx, domain.EventLeadDeleted, &domain.Lead{ID: id, OrganizationID: orgID})
	u.logger.Info("лид удален", zap.String("id", id))
	return nil
}

func (u *LeadUsecase) publish(ctx context.Context, category domain.EventCategory, lead *domain.Lead) {
	if u.publisher == nil {
		return
	}
	u.publisher.Publish(ctx, domain.Event{
		Category:       category,
		OrganizationID: lead.OrganizationID,
		EntityID:       lead.ID,
		OccurredAt:     u.clock.Now().UTC(),
	})
}
