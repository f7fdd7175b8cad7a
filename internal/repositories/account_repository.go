package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/restream/reindexer/v4"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// SubscriptionRepository хранит одну подписку на организацию.
type SubscriptionRepository struct {
	db *ReindexerDB
}

func NewSubscriptionRepository(db *ReindexerDB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Get(ctx context.Context, orgID string) (*domain.Subscription, error) {
	sub, err := queryOne[domain.Subscription](ctx, r.db, subscriptionsNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("organization_id", reindexer.EQ, orgID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("подписка %s: %w", orgID, domain.ErrNotFound)
	}
	return sub, err
}

func (r *SubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	return r.db.upsert(ctx, subscriptionsNamespace, sub)
}

// PreferencesRepository хранит пользовательские настройки.
type PreferencesRepository struct {
	db *ReindexerDB
}

func NewPreferencesRepository(db *ReindexerDB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	return queryOne[domain.UserPreferences](ctx, r.db, preferencesNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("user_id", reindexer.EQ, userID)
	})
}

func (r *PreferencesRepository) Save(ctx context.Context, prefs *domain.UserPreferences) error {
	return r.db.upsert(ctx, preferencesNamespace, prefs)
}

// TwoFactorRepository хранит TOTP-секреты и хэши резервных кодов.
type TwoFactorRepository struct {
	db *ReindexerDB
}

func NewTwoFactorRepository(db *ReindexerDB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

func (r *TwoFactorRepository) Get(ctx context.Context, userID string) (*domain.TwoFactorCredential, error) {
	return queryOne[domain.TwoFactorCredential](ctx, r.db, twoFactorNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("user_id", reindexer.EQ, userID)
	})
}

func (r *TwoFactorRepository) Save(ctx context.Context, cred *domain.TwoFactorCredential) error {
	return r.db.upsert(ctx, twoFactorNamespace, cred)
}

// Delete идемпотентен: отсутствие записи не ошибка.
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.deleteWhere(ctx, twoFactorNamespace, func(q *reindexer.Query) *reindexer.Query {
		return q.Where("user_id", reindexer.EQ, userID)
	})
	return err
}

var (
	_ domain.SubscriptionRepository = (*SubscriptionRepository)(nil)
	_ domain.PreferencesRepository  = (*PreferencesRepository)(nil)
	_ domain.TwoFactorRepository    = (*TwoFactorRepository)(nil)
)
