package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// PreferencesUsecase читает и сохраняет пользовательские настройки.
type PreferencesUsecase struct {
	repo     domain.PreferencesRepository
	validate *validator.Validate
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewPreferencesUsecase(repo domain.PreferencesRepository, logger *zap.Logger, clock clockwork.Clock) *PreferencesUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PreferencesUsecase{
		repo:     repo,
		validate: validator.New(),
		clock:    clock,
		logger:   logger,
	}
}

// Get возвращает настройки пользователя или значения по умолчанию, если он их не менял.
func (u *PreferencesUsecase) Get(ctx context.Context, userID, orgID string) (*domain.UserPreferences, error) {
	prefs, err := u.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultPreferences(userID, orgID), nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// Update полностью заменяет настройки после валидации.
func (u *PreferencesUsecase) Update(ctx context.Context, userID, orgID string, prefs domain.UserPreferences) (*domain.UserPreferences, error) {
	prefs.UserID = userID
	prefs.OrganizationID = orgID

	if err := u.validate.Struct(prefs); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid %s: %w", verrs[0].Field(), domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}

	prefs.UpdatedAt = u.clock.Now().UTC()
	if err := u.repo.Save(ctx, &prefs); err != nil {
		u.logger.Error("ошибка сохранения настроек",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	return &prefs, nil
}
