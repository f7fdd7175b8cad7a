package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
)

const healthCheckTimeout = 5 * time.Second

type HealthService interface {
	Check(ctx context.Context) *usecases.HealthReport
}

var _ HealthService = (*usecases.HealthUsecase)(nil)

// HealthHandler answers orchestrator probes. Unhealthy maps to 503, degraded still
// answers 200 since the service keeps serving.
type HealthHandler struct {
	responder
	usecase HealthService
}

func NewHealthHandler(usecase HealthService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{responder: responder{logger: logger}, usecase: usecase}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	report := h.usecase.Check(ctx)
	status := http.StatusOK
	if report.Status == monitor.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, r, status, report)
}
