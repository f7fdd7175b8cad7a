package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

var leadNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newLeadUsecase(t *testing.T) (*LeadUsecase, *MockLeadRepository, *MockEventPublisher) {
	repo := new(MockLeadRepository)
	pub := new(MockEventPublisher)
	uc := NewLeadUsecase(repo, pub, zaptest.NewLogger(t), 4, clockwork.NewFakeClockAt(leadNow))
	return uc, repo, pub
}

func eventOf(category domain.EventCategory, orgID string) interface{} {
	return mock.MatchedBy(func(e domain.Event) bool {
		return e.Category == category && e.OrganizationID == orgID && e.EntityID != ""
	})
}

// TestCreateLeadPublishesEvent tests creation defaults and the lead_created event
func TestCreateLeadPublishesEvent(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Lead")).Return(nil)
	pub.On("Publish", ctx, eventOf(domain.EventLeadCreated, "org-1")).Return()

	lead, err := uc.CreateLead(ctx, "org-1", LeadInput{Name: "  Acme  ", Source: "website", Value: amount(500)})
	require.NoError(t, err)

	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "Acme", lead.Name)
	assert.Equal(t, domain.StageNew, lead.Stage)
	assert.Equal(t, 500.0, lead.Value)
	assert.Equal(t, leadNow, lead.CreatedAt)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateLeadValidation(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	_, err := uc.CreateLead(ctx, "org-1", LeadInput{Name: " ", Source: "website"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = uc.CreateLead(ctx, "org-1", LeadInput{Name: "Acme", Source: "website", Stage: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// TestCreateLeadRepositoryError tests that nothing is published when the write fails
func TestCreateLeadRepositoryError(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

	_, err := uc.CreateLead(ctx, "org-1", LeadInput{Name: "Acme", Source: "ads"})
	assert.Error(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// TestChangeStage tests the transition log and the stage_change event
func TestChangeStage(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	existing := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Stage: domain.StageContacted}
	repo.On("GetByID", ctx, "org-1", "lead-1").Return(existing, nil)
	repo.On("Update", ctx, existing).Return(nil)
	repo.On("RecordStageEvent", ctx, mock.MatchedBy(func(e *domain.StageEvent) bool {
		return e.LeadID == "lead-1" && e.FromStage == domain.StageContacted && e.ToStage == domain.StageQualified
	})).Return(nil)
	pub.On("Publish", ctx, eventOf(domain.EventStageChange, "org-1")).Return()

	lead, err := uc.ChangeStage(ctx, "org-1", "lead-1", domain.StageQualified)
	require.NoError(t, err)
	assert.Equal(t, domain.StageQualified, lead.Stage)
	assert.Equal(t, leadNow, lead.StageChangedAt)

	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

// TestChangeStageSameStage tests that moving to the current stage is a no-op
func TestChangeStageSameStage(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	existing := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Stage: domain.StageWon}
	repo.On("GetByID", ctx, "org-1", "lead-1").Return(existing, nil)

	lead, err := uc.ChangeStage(ctx, "org-1", "lead-1", domain.StageWon)
	require.NoError(t, err)
	assert.Same(t, existing, lead)

	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

// TestChangeStageLogFailure tests that a failed transition log does not fail the change
func TestChangeStageLogFailure(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	existing := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Stage: domain.StageProposal}
	repo.On("GetByID", ctx, "org-1", "lead-1").Return(existing, nil)
	repo.On("Update", ctx, existing).Return(nil)
	repo.On("RecordStageEvent", ctx, mock.Anything).Return(errors.New("log unavailable"))
	pub.On("Publish", ctx, eventOf(domain.EventStageChange, "org-1")).Return()

	_, err := uc.ChangeStage(ctx, "org-1", "lead-1", domain.StageLost)
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestChangeStageNotFound(t *testing.T) {
	uc, repo, _ := newLeadUsecase(t)
	ctx := context.Background()

	repo.On("GetByID", ctx, "org-1", "missing").Return(nil, domain.ErrNotFound)

	_, err := uc.ChangeStage(ctx, "org-1", "missing", domain.StageWon)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestListLeadsPagination tests limit normalization
func TestListLeadsPagination(t *testing.T) {
	uc, repo, _ := newLeadUsecase(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.PaginationParams
		want domain.PaginationParams
	}{
		{"defaults", domain.PaginationParams{}, domain.PaginationParams{Limit: 20}},
		{"capped", domain.PaginationParams{Limit: 1000, Offset: 40}, domain.PaginationParams{Limit: 100, Offset: 40}},
		{"negative offset", domain.PaginationParams{Limit: 5, Offset: -3}, domain.PaginationParams{Limit: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &domain.PaginatedLeads{Limit: tt.want.Limit, Offset: tt.want.Offset}
			repo.On("List", ctx, "org-1", domain.LeadFilter{}, tt.want).Return(page, nil).Once()

			got, err := uc.ListLeads(ctx, "org-1", domain.LeadFilter{}, tt.in)
			require.NoError(t, err)
			assert.Same(t, page, got)
		})
	}

	_, err := uc.ListLeads(ctx, "org-1", domain.LeadFilter{Stage: "archived"}, domain.PaginationParams{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteLead(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	repo.On("Delete", ctx, "org-1", "lead-1").Return(nil)
	repo.On("Delete", ctx, "org-1", "lead-2").Return(domain.ErrNotFound)
	pub.On("Publish", ctx, eventOf(domain.EventLeadDeleted, "org-1")).Return().Once()

	require.NoError(t, uc.DeleteLead(ctx, "org-1", "lead-1"))
	assert.ErrorIs(t, uc.DeleteLead(ctx, "org-1", "lead-2"), domain.ErrNotFound)
	pub.AssertExpectations(t)
}

func TestUpdateLeadKeepsStage(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	existing := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Name: "Old", Source: "ads", Stage: domain.StageProposal}
	repo.On("GetByID", ctx, "org-1", "lead-1").Return(existing, nil)
	repo.On("Update", ctx, existing).Return(nil)
	pub.On("Publish", ctx, eventOf(domain.EventLeadUpdated, "org-1")).Return()

	lead, err := uc.UpdateLead(ctx, "org-1", "lead-1", LeadInput{Name: "New", Stage: domain.StageWon})
	require.NoError(t, err)
	assert.Equal(t, "New", lead.Name)
	assert.Equal(t, "ads", lead.Source)
	assert.Equal(t, domain.StageProposal, lead.Stage)
}

func amount(v float64) *float64 { return &v }

func TestUpdateLeadValue(t *testing.T) {
	uc, repo, pub := newLeadUsecase(t)
	ctx := context.Background()

	existing := &domain.Lead{ID: "lead-1", OrganizationID: "org-1", Name: "Acme", Source: "ads", Value: 500}
	repo.On("GetByID", ctx, "org-1", "lead-1").Return(existing, nil)
	repo.On("Update", ctx, existing).Return(nil)
	pub.On("Publish", ctx, eventOf(domain.EventLeadUpdated, "org-1")).Return()

	lead, err := uc.UpdateLead(ctx, "org-1", "lead-1", LeadInput{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 500.0, lead.Value)

	lead, err = uc.UpdateLead(ctx, "org-1", "lead-1", LeadInput{Value: amount(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, lead.Value)
}
