package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/twofactor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
)

type BillingService interface {
	Plans() []domain.Plan
	GetSubscription(ctx context.Context, orgID string) (*usecases.SubscriptionView, error)
	ChangePlan(ctx context.Context, orgID, planCode string) (*usecases.SubscriptionView, error)
	CancelSubscription(ctx context.Context, orgID string) (*usecases.SubscriptionView, error)
}

type PreferencesService interface {
	Get(ctx context.Context, userID, orgID string) (*domain.UserPreferences, error)
	Update(ctx context.Context, userID, orgID string, prefs domain.UserPreferences) (*domain.UserPreferences, error)
}

type TwoFactorService interface {
	Setup(ctx context.Context, userID, account string) (*twofactor.Enrollment, error)
	Enable(ctx context.Context, userID, code string) error
	Verify(ctx context.Context, userID, code string) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
	Disable(ctx context.Context, userID, code string) error
	Status(ctx context.Context, userID string) (*usecases.TwoFactorStatus, error)
}

var (
	_ BillingService     = (*usecases.BillingUsecase)(nil)
	_ PreferencesService = (*usecases.PreferencesUsecase)(nil)
	_ TwoFactorService   = (*usecases.TwoFactorUsecase)(nil)
)

// AccountHandler serves billing, preferences and two-factor endpoints
type AccountHandler struct {
	responder
	billing     BillingService
	preferences PreferencesService
	twoFactor   TwoFactorService
}

func NewAccountHandler(billing BillingService, preferences PreferencesService, twoFactor TwoFactorService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		responder:   responder{logger: logger},
		billing:     billing,
		preferences: preferences,
		twoFactor:   twoFactor,
	}
}

func caller(r *http.Request) *middleware.Principal {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		return p
	}
	return &middleware.Principal{Organization: &domain.Organization{}}
}

// Plans handles GET /billing/plans
func (h *AccountHandler) Plans(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"plans": h.billing.Plans()})
}

// Subscription handles GET /billing/subscription
func (h *AccountHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.billing.GetSubscription(r.Context(), caller(r).Organization.GetID())
	if err != nil {
		h.fail(w, r, "load subscription", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, view)
}

type planRequest struct {
	Plan string `json:"plan"`
}

// ChangePlan handles PUT /billing/subscription
func (h *AccountHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "decode plan", err)
		return
	}
	view, err := h.billing.ChangePlan(r.Context(), caller(r).Organization.GetID(), req.Plan)
	if err != nil {
		h.fail(w, r, "change plan", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, view)
}

// CancelSubscription handles DELETE /billing/subscription
func (h *AccountHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.billing.CancelSubscription(r.Context(), caller(r).Organization.GetID())
	if err != nil {
		h.fail(w, r, "cancel subscription", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, view)
}

// GetPreferences handles GET /preferences
func (h *AccountHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	prefs, err := h.preferences.Get(r.Context(), p.UserID, p.Organization.GetID())
	if err != nil {
		h.fail(w, r, "load preferences", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /preferences
func (h *AccountHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var in domain.UserPreferences
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "decode preferences", err)
		return
	}
	p := caller(r)
	prefs, err := h.preferences.Update(r.Context(), p.UserID, p.Organization.GetID(), in)
	if err != nil {
		h.fail(w, r, "update preferences", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, prefs)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *AccountHandler) code(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req codeRequest
	if err := decode(r, &req); err != nil || req.Code == "" {
		h.respondError(w, r, http.StatusBadRequest, "code is required")
		return "", false
	}
	return req.Code, true
}

// TwoFactorStatus handles GET /2fa
func (h *AccountHandler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.twoFactor.Status(r.Context(), caller(r).UserID)
	if err != nil {
		h.fail(w, r, "load two-factor status", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, status)
}

// TwoFactorSetup handles POST /2fa/setup
func (h *AccountHandler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	account := p.Email
	if account == "" {
		account = p.UserID
	}
	enrollment, err := h.twoFactor.Setup(r.Context(), p.UserID, account)
	if err != nil {
		h.fail(w, r, "set up two-factor", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, enrollment)
}

// TwoFactorEnable handles POST /2fa/enable
func (h *AccountHandler) TwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	code, ok := h.code(w, r)
	if !ok {
		return
	}
	if err := h.twoFactor.Enable(r.Context(), caller(r).UserID, code); err != nil {
		h.fail(w, r, "enable two-factor", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]bool{"enabled": true})
}

// TwoFactorVerify handles POST /2fa/verify
func (h *AccountHandler) TwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	code, ok := h.code(w, r)
	if !ok {
		return
	}
	if err := h.twoFactor.Verify(r.Context(), caller(r).UserID, code); err != nil {
		h.fail(w, r, "verify two-factor", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}

// TwoFactorBackupCodes handles POST /2fa/backup-codes
func (h *AccountHandler) TwoFactorBackupCodes(w http.ResponseWriter, r *http.Request) {
	code, ok := h.code(w, r)
	if !ok {
		return
	}
	codes, err := h.twoFactor.RegenerateBackupCodes(r.Context(), caller(r).UserID, code)
	if err != nil {
		h.fail(w, r, "regenerate backup codes", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string][]string{"backup_codes": codes})
}

// TwoFactorDisable handles POST /2fa/disable
func (h *AccountHandler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	code, ok := h.code(w, r)
	if !ok {
		return
	}
	if err := h.twoFactor.Disable(r.Context(), caller(r).UserID, code); err != nil {
		h.fail(w, r, "disable two-factor", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]bool{"enabled": false})
}
