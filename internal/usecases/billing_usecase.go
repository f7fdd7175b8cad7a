package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// SubscriptionView: подписка вместе с действующим тарифом.
type SubscriptionView struct {
	Subscription *domain.Subscription `json:"subscription"`
	Plan         domain.Plan          `json:"plan"`
}

// BillingUsecase меняет тарифы через платежного провайдера и хранит результат у себя.
type BillingUsecase struct {
	subs    domain.SubscriptionRepository
	gateway domain.PaymentGateway
	gate    *FeatureGate
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewBillingUsecase(
	subs domain.SubscriptionRepository,
	gateway domain.PaymentGateway,
	gate *FeatureGate,
	logger *zap.Logger,
	clock clockwork.Clock,
) *BillingUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BillingUsecase{subs: subs, gateway: gateway, gate: gate, clock: clock, logger: logger}
}

// Plans возвращает каталог тарифов.
func (u *BillingUsecase) Plans() []domain.Plan {
	return Plans
}

// GetSubscription возвращает подписку; без подписки организация на free.
func (u *BillingUsecase) GetSubscription(ctx context.Context, orgID string) (*SubscriptionView, error) {
	sub, err := u.subs.Get(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		sub = &domain.Subscription{
			OrganizationID: orgID,
			PlanCode:       FreePlanCode,
			Status:         domain.SubscriptionActive,
		}
	} else if err != nil {
		return nil, err
	}
	return &SubscriptionView{Subscription: sub, Plan: effectivePlan(sub)}, nil
}

// ChangePlan переводит организацию на planCode. Переход на free, это отмена.
func (u *BillingUsecase) ChangePlan(ctx context.Context, orgID, planCode string) (*SubscriptionView, error) {
	plan, ok := PlanByCode(planCode)
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", planCode, domain.ErrInvalidInput)
	}
	if plan.Code == FreePlanCode {
		return u.CancelSubscription(ctx, orgID)
	}

	current, err := u.GetSubscription(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sub := current.Subscription
	if sub.PlanCode == plan.Code && sub.Status == domain.SubscriptionActive {
		return current, nil
	}

	remote, err := u.gateway.Subscribe(ctx, orgID, sub.ExternalCustomerID, plan.Code)
	if err != nil {
		u.logger.Error("ошибка смены тарифа у провайдера",
			zap.String("organization_id", orgID),
			zap.String("plan", plan.Code),
			zap.Error(err),
		)
		return nil, err
	}

	sub.PlanCode = plan.Code
	sub.Status = remote.Status
	if sub.Status == "" {
		sub.Status = domain.SubscriptionActive
	}
	sub.ExternalCustomerID = remote.CustomerID
	sub.ExternalSubscriptionID = remote.SubscriptionID
	sub.CurrentPeriodEnd = remote.CurrentPeriodEnd
	sub.CanceledAt = nil
	sub.UpdatedAt = u.clock.Now().UTC()

	if err := u.save(ctx, sub); err != nil {
		return nil, err
	}

	u.logger.Info("тариф изменен",
		zap.String("organization_id", orgID),
		zap.String("plan", plan.Code),
	)
	return &SubscriptionView{Subscription: sub, Plan: plan}, nil
}

// CancelSubscription отменяет платную подписку. Для free-организации ничего не делает.
func (u *BillingUsecase) CancelSubscription(ctx context.Context, orgID string) (*SubscriptionView, error) {
	current, err := u.GetSubscription(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sub := current.Subscription
	if sub.ExternalSubscriptionID == "" || sub.Status == domain.SubscriptionCanceled {
		return current, nil
	}

	if err := u.gateway.Cancel(ctx, sub.ExternalSubscriptionID); err != nil {
		u.logger.Error("ошибка отмены подписки у провайдера",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return nil, err
	}

	now := u.clock.Now().UTC()
	sub.Status = domain.SubscriptionCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now

	if err := u.save(ctx, sub); err != nil {
		return nil, err
	}

	u.logger.Info("подписка отменена", zap.String("organization_id", orgID))
	return &SubscriptionView{Subscription: sub, Plan: effectivePlan(sub)}, nil
}

func (u *BillingUsecase) save(ctx context.Context, sub *domain.Subscription) error {
	if err := u.subs.Save(ctx, sub); err != nil {
		return err
	}
	if u.gate != nil {
		u.gate.Invalidate(sub.OrganizationID)
	}
	return nil
}
