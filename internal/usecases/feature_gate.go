package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// Plans: каталог тарифов. Коды совпадают с тарифами платежного провайдера.
var Plans = []domain.Plan{
	{
		Code:     "free",
		Name:     "Free",
		MaxLeads: 100,
		MaxUsers: 1,
	},
	{
		Code:       "starter",
		Name:       "Starter",
		PriceCents: 2900,
		MaxLeads:   2000,
		MaxUsers:   3,
		Features:   []string{domain.FeatureTwoFactor},
	},
	{
		Code:       "pro",
		Name:       "Pro",
		PriceCents: 9900,
		MaxLeads:   25000,
		MaxUsers:   15,
		Features: []string{
			domain.FeatureTwoFactor,
			domain.FeatureAdvancedAnalytics,
			domain.FeatureMonthlyReports,
		},
	},
	{
		Code:       "enterprise",
		Name:       "Enterprise",
		PriceCents: 29900,
		Features: []string{
			domain.FeatureTwoFactor,
			domain.FeatureAdvancedAnalytics,
			domain.FeatureMonthlyReports,
			domain.FeatureBehaviorInsights,
			domain.FeatureAPIAccess,
		},
	},
}

// FreePlanCode is what an organization without an active subscription gets
const FreePlanCode = "free"

// PlanByCode ищет тариф в каталоге.
func PlanByCode(code string) (domain.Plan, bool) {
	for _, p := range Plans {
		if p.Code == code {
			return p, true
		}
	}
	return domain.Plan{}, false
}

// effectivePlan: тариф, действующий для подписки. Отмененная подписка дает free.
func effectivePlan(sub *domain.Subscription) domain.Plan {
	free, _ := PlanByCode(FreePlanCode)
	if sub == nil || sub.Status == domain.SubscriptionCanceled {
		return free
	}
	if p, ok := PlanByCode(sub.PlanCode); ok {
		return p
	}
	return free
}

// FeatureGate проверяет доступность функций по тарифу организации.
// Код тарифа держится в локальном bigcache, чтобы не ходить в базу на каждый запрос.
type FeatureGate struct {
	subs   domain.SubscriptionRepository
	local  *bigcache.BigCache
	logger *zap.Logger
}

func NewFeatureGate(ctx context.Context, subs domain.SubscriptionRepository, ttl time.Duration, logger *zap.Logger) (*FeatureGate, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false
	local, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания локального кэша тарифов: %w", err)
	}
	return &FeatureGate{subs: subs, local: local, logger: logger}, nil
}

// Plan возвращает действующий тариф организации.
func (g *FeatureGate) Plan(ctx context.Context, orgID string) (domain.Plan, error) {
	if code, err := g.local.Get(orgID); err == nil {
		if p, ok := PlanByCode(string(code)); ok {
			return p, nil
		}
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		g.logger.Warn("ошибка чтения локального кэша тарифов", zap.Error(err))
	}

	sub, err := g.subs.Get(ctx, orgID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Plan{}, err
	}

	plan := effectivePlan(sub)
	if err := g.local.Set(orgID, []byte(plan.Code)); err != nil {
		g.logger.Warn("не удалось закэшировать тариф", zap.String("organization_id", orgID), zap.Error(err))
	}
	return plan, nil
}

// Enabled сообщает, входит ли feature в тариф организации.
func (g *FeatureGate) Enabled(ctx context.Context, orgID, feature string) (bool, error) {
	plan, err := g.Plan(ctx, orgID)
	if err != nil {
		return false, err
	}
	return plan.Has(feature), nil
}

// Require возвращает domain.ErrFeatureNotAvailable, если функции нет в тарифе.
func (g *FeatureGate) Require(ctx context.Context, orgID, feature string) error {
	ok, err := g.Enabled(ctx, orgID, feature)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", feature, domain.ErrFeatureNotAvailable)
	}
	return nil
}

// Invalidate сбрасывает закэшированный тариф после смены подписки.
func (g *FeatureGate) Invalidate(orgID string) {
	if err := g.local.Delete(orgID); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		g.logger.Warn("не удалось сбросить тариф из кэша", zap.String("organization_id", orgID), zap.Error(err))
	}
}

func (g *FeatureGate) Close() error {
	return g.local.Close()
}
