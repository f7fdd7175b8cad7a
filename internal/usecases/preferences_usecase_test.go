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

func TestPreferencesDefaults(t *testing.T) {
	repo := new(MockPreferencesRepository)
	uc := NewPreferencesUsecase(repo, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(nil, domain.ErrNotFound)

	prefs, err := uc.Get(ctx, "user-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences("user-1", "org-1"), prefs)
}

func TestPreferencesGetError(t *testing.T) {
	repo := new(MockPreferencesRepository)
	uc := NewPreferencesUsecase(repo, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	boom := errors.New("db down")
	repo.On("Get", ctx, "user-1").Return(nil, boom)

	_, err := uc.Get(ctx, "user-1", "org-1")
	assert.ErrorIs(t, err, boom)
}

// TestPreferencesUpdate tests validation and ownership fields
func TestPreferencesUpdate(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	repo := new(MockPreferencesRepository)
	uc := NewPreferencesUsecase(repo, zaptest.NewLogger(t), clockwork.NewFakeClockAt(now))
	ctx := context.Background()

	repo.On("Save", ctx, mock.AnythingOfType("*domain.UserPreferences")).Return(nil)

	in := *domain.DefaultPreferences("", "")
	in.Theme = "dark"
	in.Timezone = "UTC"
	in.UserID = "someone-else"

	saved, err := uc.Update(ctx, "user-1", "org-1", in)
	require.NoError(t, err)
	assert.Equal(t, "user-1", saved.UserID)
	assert.Equal(t, "org-1", saved.OrganizationID)
	assert.Equal(t, "dark", saved.Theme)
	assert.Equal(t, now, saved.UpdatedAt)

	tests := []struct {
		name   string
		mutate func(p *domain.UserPreferences)
	}{
		{"theme", func(p *domain.UserPreferences) { p.Theme = "neon" }},
		{"timezone", func(p *domain.UserPreferences) { p.Timezone = "Mars/Olympus" }},
		{"language", func(p *domain.UserPreferences) { p.Language = "" }},
		{"dashboard days", func(p *domain.UserPreferences) { p.DefaultDashboardDays = 45 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *domain.DefaultPreferences("", "")
			tt.mutate(&p)
			_, err := uc.Update(ctx, "user-1", "org-1", p)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	repo.AssertNumberOfCalls(t, "Save", 1)
}
