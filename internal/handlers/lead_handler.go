package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
)

// LeadService is the part of the lead usecase the HTTP layer needs
type LeadService interface {
	CreateLead(ctx context.Context, orgID string, in usecases.LeadInput) (*domain.Lead, error)
	GetLead(ctx context.Context, orgID, id string) (*domain.Lead, error)
	ListLeads(ctx context.Context, orgID string, filter domain.LeadFilter, params domain.PaginationParams) (*domain.PaginatedLeads, error)
	UpdateLead(ctx context.Context, orgID, id string, in usecases.LeadInput) (*domain.Lead, error)
	ChangeStage(ctx context.Context, orgID, id string, to domain.Stage) (*domain.Lead, error)
	DeleteLead(ctx context.Context, orgID, id string) error
}

var _ LeadService = (*usecases.LeadUsecase)(nil)

// LeadHandler handles HTTP requests for leads
type LeadHandler struct {
	responder
	usecase  LeadService
	validate *validator.Validate
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(usecase LeadService, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		responder: responder{logger: logger},
		usecase:   usecase,
		validate:  validator.New(),
	}
}

// CreateLead handles POST /leads
func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var in usecases.LeadInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "decode lead", err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		h.logger.Warn("validation failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		h.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := h.usecase.CreateLead(r.Context(), middleware.OrganizationID(r.Context()), in)
	if err != nil {
		h.fail(w, r, "create lead", err)
		return
	}
	h.respondJSON(w, r, http.StatusCreated, lead)
}

// GetLead handles GET /leads/{id}
func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.usecase.GetLead(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get lead", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, lead)
}

// UpdateLead handles PUT /leads/{id}
func (h *LeadHandler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var in usecases.LeadInput
	if err := decode(r, &in); err != nil {
		h.fail(w, r, "decode lead", err)
		return
	}
	if err := h.validate.StructPartial(in, "Email", "Value"); err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := h.usecase.UpdateLead(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, "update lead", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, lead)
}

type stageRequest struct {
	Stage domain.Stage `json:"stage"`
}

// ChangeStage handles POST /leads/{id}/stage
func (h *LeadHandler) ChangeStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, "decode stage", err)
		return
	}

	lead, err := h.usecase.ChangeStage(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "id"), req.Stage)
	if err != nil {
		h.fail(w, r, "change stage", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, lead)
}

// DeleteLead handles DELETE /leads/{id}
func (h *LeadHandler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.DeleteLead(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "delete lead", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{"message": "lead deleted"})
}

// ListLeads handles GET /leads with pagination
func (h *LeadHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := parsePaginationParams(r)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	filter := domain.LeadFilter{
		Stage:  domain.Stage(r.URL.Query().Get("stage")),
		Source: r.URL.Query().Get("source"),
	}
	params := domain.PaginationParams{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}

	result, err := h.usecase.ListLeads(r.Context(), middleware.OrganizationID(r.Context()), filter, params)
	if err != nil {
		h.fail(w, r, "list leads", err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"data": result.Items,
		"pagination": map[string]interface{}{
			"page":        page,
			"per_page":    perPage,
			"total":       result.Total,
			"total_pages": (result.Total + perPage - 1) / perPage,
			"has_more":    result.HasMore,
		},
	})
}

// parsePaginationParams parses and validates pagination parameters
func parsePaginationParams(r *http.Request) (page, perPage int, err error) {
	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		page = defaultPage
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter: must be a positive integer")
		}
	}

	perPageStr := r.URL.Query().Get("per_page")
	if perPageStr == "" {
		perPage = defaultPerPage
	} else {
		perPage, err = strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 {
			return 0, 0, fmt.Errorf("invalid per_page parameter: must be a positive integer")
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}
	}

	return page, perPage, nil
}
