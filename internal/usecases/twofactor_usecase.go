package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/twofactor"
)

// TwoFactorStatus: состояние 2FA пользователя.
type TwoFactorStatus struct {
	Enabled              bool `json:"enabled"`
	Pending              bool `json:"pending"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// TwoFactorUsecase: жизненный цикл TOTP: настройка, включение, проверка, отключение.
type TwoFactorUsecase struct {
	repo   domain.TwoFactorRepository
	auth   *twofactor.Authenticator
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewTwoFactorUsecase(repo domain.TwoFactorRepository, auth *twofactor.Authenticator, logger *zap.Logger, clock clockwork.Clock) *TwoFactorUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TwoFactorUsecase{repo: repo, auth: auth, clock: clock, logger: logger}
}

// Setup выдает новый секрет и резервные коды. Коды показываются один раз, храним только хэши.
// Повторный Setup до включения заменяет незавершенную настройку.
func (u *TwoFactorUsecase) Setup(ctx context.Context, userID, account string) (*twofactor.Enrollment, error) {
	existing, err := u.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, fmt.Errorf("two-factor already enabled: %w", domain.ErrConflict)
	}

	enrollment, hashes, err := u.auth.Enroll(account)
	if err != nil {
		return nil, err
	}

	cred := &domain.TwoFactorCredential{
		UserID:           userID,
		Secret:           enrollment.Secret,
		BackupCodeHashes: hashes,
		CreatedAt:        u.clock.Now().UTC(),
	}
	if err := u.repo.Save(ctx, cred); err != nil {
		return nil, err
	}

	u.logger.Info("начата настройка 2FA", zap.String("user_id", userID))
	return enrollment, nil
}

// Enable подтверждает настройку кодом из приложения.
func (u *TwoFactorUsecase) Enable(ctx context.Context, userID, code string) error {
	cred, err := u.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if cred.Enabled {
		return fmt.Errorf("two-factor already enabled: %w", domain.ErrConflict)
	}

	step, err := u.auth.ValidateTOTP(cred.Secret, code, cred.LastUsedStep)
	if err != nil {
		return err
	}

	now := u.clock.Now().UTC()
	cred.Enabled = true
	cred.EnabledAt = &now
	cred.LastUsedStep = step
	if err := u.repo.Save(ctx, cred); err != nil {
		return err
	}

	u.logger.Info("2FA включена", zap.String("user_id", userID))
	return nil
}

// Verify принимает TOTP-код или одноразовый резервный код.
func (u *TwoFactorUsecase) Verify(ctx context.Context, userID, code string) error {
	cred, err := u.enabled(ctx, userID)
	if err != nil {
		return err
	}

	step, totpErr := u.auth.ValidateTOTP(cred.Secret, code, cred.LastUsedStep)
	if totpErr == nil {
		cred.LastUsedStep = step
		return u.repo.Save(ctx, cred)
	}
	if errors.Is(totpErr, twofactor.ErrCodeReused) {
		return totpErr
	}

	idx := twofactor.MatchBackupCode(cred.BackupCodeHashes, code)
	if idx < 0 {
		return twofactor.ErrInvalidCode
	}

	cred.BackupCodeHashes = append(cred.BackupCodeHashes[:idx], cred.BackupCodeHashes[idx+1:]...)
	if err := u.repo.Save(ctx, cred); err != nil {
		return err
	}

	u.logger.Info("использован резервный код 2FA",
		zap.String("user_id", userID),
		zap.Int("осталось", len(cred.BackupCodeHashes)),
	)
	return nil
}

// RegenerateBackupCodes заменяет все резервные коды. Требует действующий TOTP-код.
func (u *TwoFactorUsecase) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	cred, err := u.enabled(ctx, userID)
	if err != nil {
		return nil, err
	}

	step, err := u.auth.ValidateTOTP(cred.Secret, code, cred.LastUsedStep)
	if err != nil {
		return nil, err
	}

	codes, hashes, err := u.auth.BackupCodes()
	if err != nil {
		return nil, err
	}
	cred.BackupCodeHashes = hashes
	cred.LastUsedStep = step
	if err := u.repo.Save(ctx, cred); err != nil {
		return nil, err
	}
	return codes, nil
}

// Disable снимает 2FA. Требует действующий TOTP-код.
func (u *TwoFactorUsecase) Disable(ctx context.Context, userID, code string) error {
	cred, err := u.enabled(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := u.auth.ValidateTOTP(cred.Secret, code, cred.LastUsedStep); err != nil {
		return err
	}
	if err := u.repo.Delete(ctx, userID); err != nil {
		return err
	}

	u.logger.Info("2FA отключена", zap.String("user_id", userID))
	return nil
}

func (u *TwoFactorUsecase) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	cred, err := u.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &TwoFactorStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &TwoFactorStatus{
		Enabled:              cred.Enabled,
		Pending:              !cred.Enabled,
		BackupCodesRemaining: len(cred.BackupCodeHashes),
	}, nil
}

func (u *TwoFactorUsecase) enabled(ctx context.Context, userID string) (*domain.TwoFactorCredential, error) {
	cred, err := u.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cred.Enabled {
		return nil, fmt.Errorf("two-factor not enabled: %w", domain.ErrNotFound)
	}
	return cred, nil
}
