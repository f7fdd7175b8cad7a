package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

var invalidationRules = map[domain.EventCategory][]string{
	domain.EventStageChange: {
		OpExecutiveDashboard,
		OpSummaryMetrics,
		OpConversionFunnel,
		OpSourcePerformance,
		OpStageTiming,
		OpBehaviorInsights,
	},
	domain.EventLeadCreated: {
		OpExecutiveDashboard,
		OpSummaryMetrics,
		OpConversionFunnel,
		OpSourcePerformance,
		OpLeadTrends,
	},
	domain.EventLeadDeleted: {
		OpExecutiveDashboard,
		OpSummaryMetrics,
		OpConversionFunnel,
		OpSourcePerformance,
		OpLeadTrends,
	},
}

var defaultInvalidation = []string{
	OpExecutiveDashboard,
	OpSummaryMetrics,
	OpConversionFunnel,
}

// OperationsFor returns the operations whose entries go stale on category.
func OperationsFor(category domain.EventCategory) []string {
	if ops, ok := invalidationRules[category]; ok {
		return ops
	}
	return defaultInvalidation
}

// InvalidationReport summarises one trigger run.
type InvalidationReport struct {
	OrganizationID string
	Category       domain.EventCategory
	Deleted        map[string]int64
	Failed         []string
}

// Invalidator deletes stale analytics entries when tenant data changes. A value computed
// before an invalidation may still be written after it; such entries live until TTL expiry.
type Invalidator struct {
	store  Store
	logger *zap.Logger
}

func NewInvalidator(store Store, logger *zap.Logger) *Invalidator {
	return &Invalidator{store: store, logger: logger}
}

// OnDomainEvent deletes every parameter variant of each affected operation. Failures are
// logged per operation and never stop the remaining deletes.
func (i *Invalidator) OnDomainEvent(ctx context.Context, tenantID, entityID string, category domain.EventCategory) InvalidationReport {
	report := InvalidationReport{
		OrganizationID: tenantID,
		Category:       category,
		Deleted:        make(map[string]int64),
	}

	if err := validateTenant(tenantID); err != nil {
		i.logger.Warn("skipping cache invalidation for invalid tenant",
			zap.String("organization_id", tenantID),
			zap.Error(err),
		)
		return report
	}

	for _, op := range OperationsFor(category) {
		res := i.store.DeleteByPattern(ctx, OperationPattern(op, tenantID))
		if res.Err != nil {
			report.Failed = append(report.Failed, op)
			i.logger.Warn("cache invalidation failed",
				zap.String("organization_id", tenantID),
				zap.String("operation", op),
				zap.Error(res.Err),
			)
			continue
		}
		report.Deleted[op] = res.Value
	}

	i.logger.Debug("analytics cache invalidated",
		zap.String("organization_id", tenantID),
		zap.String("entity_id", entityID),
		zap.String("category", string(category)),
		zap.Any("deleted", report.Deleted),
	)

	return report
}

// Handle adapts OnDomainEvent to the event dispatcher.
func (i *Invalidator) Handle(ctx context.Context, event domain.Event) {
	i.OnDomainEvent(ctx, event.OrganizationID, event.EntityID, event.Category)
}

// InvalidateTenant drops every analytics entry of a tenant.
func (i *Invalidator) InvalidateTenant(ctx context.Context, tenantID string) Result[int64] {
	if err := validateTenant(tenantID); err != nil {
		return failed[int64](err)
	}

	res := i.store.DeleteByPattern(ctx, TenantPattern(tenantID))
	if res.Err == nil {
		i.logger.Info("analytics cache cleared for organization",
			zap.String("organization_id", tenantID),
			zap.Int64("deleted", res.Value),
		)
	}
	return res
}
