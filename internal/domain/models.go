package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrFeatureNotAvailable = errors.New("feature not available on current plan")
)

// Organization is the tenant. Every lead, subscription and cache key is scoped by its ID.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetID exposes the tenant identifier to the analytics cache wrapper.
func (o *Organization) GetID() string {
	if o == nil {
		return ""
	}
	return o.ID
}

// Stage is a lead's position in the sales pipeline
type Stage string

const (
	StageNew         Stage = "new"
	StageContacted   Stage = "contacted"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

// PipelineStages lists the funnel stages in order. Lost is terminal and not part of the funnel.
var PipelineStages = []Stage{
	StageNew,
	StageContacted,
	StageQualified,
	StageProposal,
	StageNegotiation,
	StageWon,
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	if s == StageLost {
		return true
	}
	for _, st := range PipelineStages {
		if st == s {
			return true
		}
	}
	return false
}

// Lead represents a prospect moving through the pipeline
type Lead struct {
	ID             string    `json:"id" reindex:"id,,pk"`
	OrganizationID string    `json:"organization_id" reindex:"organization_id"`
	Name           string    `json:"name" reindex:"name"`
	Email          string    `json:"email" reindex:"email"`
	Source         string    `json:"source" reindex:"source"`
	Stage          Stage     `json:"stage" reindex:"stage"`
	Value          float64   `json:"value"`
	CreatedAt      time.Time `json:"created_at" reindex:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	StageChangedAt time.Time `json:"stage_changed_at"`
}

// StageEvent records a single pipeline transition
type StageEvent struct {
	ID             string    `json:"id" reindex:"id,,pk"`
	OrganizationID string    `json:"organization_id" reindex:"organization_id"`
	LeadID         string    `json:"lead_id" reindex:"lead_id"`
	FromStage      Stage     `json:"from_stage"`
	ToStage        Stage     `json:"to_stage"`
	OccurredAt     time.Time `json:"occurred_at" reindex:"occurred_at"`
}

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// LeadFilter narrows a lead listing
type LeadFilter struct {
	Stage  Stage
	Source string
}

// PaginatedLeads represents a paginated result
type PaginatedLeads struct {
	Items   []*Lead
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}
