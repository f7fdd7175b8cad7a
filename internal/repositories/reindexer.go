package repositories

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restream/reindexer/v4"
	// Подключаемся по cproto (RPC).
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// Имена пространств имен. mv_* это предагрегированные представления аналитики:
// их заполняет внешний процесс обновления, сервис их только читает.
const (
	leadsNamespace         = "leads"
	stageEventsNamespace   = "stage_events"
	subscriptionsNamespace = "subscriptions"
	preferencesNamespace   = "user_preferences"
	twoFactorNamespace     = "two_factor"

	dailyMetricsNamespace  = "mv_daily_lead_metrics"
	sourceMetricsNamespace = "mv_source_performance"
	stageTimingNamespace   = "mv_stage_timing"
	leadActivityNamespace  = "mv_lead_activity"
	refreshLogNamespace    = "mv_refresh_log"
)

const (
	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// namespaceSchemas связывает неймспейс со структурой, по которой Reindexer строит индексы.
var namespaceSchemas = []struct {
	name   string
	schema interface{}
}{
	{leadsNamespace, domain.Lead{}},
	{stageEventsNamespace, domain.StageEvent{}},
	{subscriptionsNamespace, domain.Subscription{}},
	{preferencesNamespace, domain.UserPreferences{}},
	{twoFactorNamespace, domain.TwoFactorCredential{}},
	{dailyMetricsNamespace, domain.DailyLeadMetrics{}},
	{sourceMetricsNamespace, domain.SourceDailyMetrics{}},
	{stageTimingNamespace, domain.StageTimingRow{}},
	{leadActivityNamespace, domain.LeadActivityRow{}},
	{refreshLogNamespace, domain.ViewRefresh{}},
}

// HealthStatus хранит текущее состояние подключения к базе.
type HealthStatus struct {
	IsHealthy   bool
	LastCheck   time.Time
	LastError   error
	Connections int
}

// ReindexerDB управляет пулом соединений с Reindexer и общим состоянием здоровья.
// Все репозитории работают поверх одного экземпляра.
type ReindexerDB struct {
	dsn      string
	poolSize int
	logger   *zap.Logger

	mu          sync.RWMutex
	db          *reindexer.Reindexer   // Главное соединение
	connections []*reindexer.Reindexer // Пул дополнительных соединений
	next        atomic.Uint64          // Счетчик для round-robin

	healthStatus atomic.Value // хранит *HealthStatus

	collectionsInitialized atomic.Bool
	collectionsMu          sync.Mutex
}

// NewReindexerDB создает пул и сразу подключается с ретраями.
func NewReindexerDB(dsn string, maxConnections int, logger *zap.Logger) (*ReindexerDB, error) {
	if maxConnections < 1 {
		maxConnections = 1
	}

	r := &ReindexerDB{
		dsn:         dsn,
		poolSize:    maxConnections,
		logger:      logger,
		connections: make([]*reindexer.Reindexer, 0, maxConnections),
	}

	// Пока не подключились, считаем себя нездоровыми.
	r.healthStatus.Store(&HealthStatus{LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := r.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе: %w", err)
	}

	return r, nil
}

// Connect (пере)устанавливает соединения.
func (r *ReindexerDB) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connectWithRetry(ctx, defaultMaxRetries)
}

func (r *ReindexerDB) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("повторная попытка подключения",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if err := r.ping(ctx, db); err != nil {
			lastErr = err
			db.Close()
			r.logger.Warn("тест соединения провален",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		r.closeAll()
		r.db = db

		r.connections = make([]*reindexer.Reindexer, 0, r.poolSize)
		for i := 0; i < r.poolSize; i++ {
			conn := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
			if err := r.ping(ctx, conn); err != nil {
				conn.Close()
				r.logger.Warn("не удалось создать соединение в пуле",
					zap.Int("индекс", i),
					zap.Error(err),
				)
				continue
			}
			r.connections = append(r.connections, conn)
		}

		// После переподключения неймспейсы нужно открыть заново.
		r.collectionsInitialized.Store(false)
		r.updateHealthStatus(true, nil, len(r.connections)+1)

		r.logger.Info("успешно подключились к Reindexer",
			zap.Int("размер_пула", len(r.connections)),
		)
		return nil
	}

	r.updateHealthStatus(false, lastErr, 0)
	return fmt.Errorf("не удалось подключиться после %d попыток: %w", maxRetries, lastErr)
}

// ping проверяет соединение реальным запросом к серверу.
func (r *ReindexerDB) ping(ctx context.Context, db *reindexer.Reindexer) error {
	if db == nil {
		return fmt.Errorf("объект соединения nil")
	}
	return db.WithContext(ctx).Ping()
}

// conn возвращает соединение из пула по round-robin.
func (r *ReindexerDB) conn(ctx context.Context) (*reindexer.Reindexer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var db *reindexer.Reindexer
	if len(r.connections) == 0 {
		db = r.db
	} else {
		db = r.connections[r.next.Add(1)%uint64(len(r.connections))]
	}
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}
	return db.WithContext(ctx), nil
}

func (r *ReindexerDB) updateHealthStatus(isHealthy bool, err error, connections int) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy:   isHealthy,
		LastCheck:   time.Now(),
		LastError:   err,
		Connections: connections,
	})
}

// Health возвращает последний известный статус без блокировок.
func (r *ReindexerDB) Health() *HealthStatus {
	status, ok := r.healthStatus.Load().(*HealthStatus)
	if !ok {
		return &HealthStatus{}
	}
	return status
}

// markFailed фиксирует ошибку запроса в статусе здоровья.
func (r *ReindexerDB) markFailed(err error) {
	r.updateHealthStatus(false, err, r.Health().Connections)
}

// EnsureCollections открывает (и при необходимости создает) все неймспейсы на всех соединениях.
func (r *ReindexerDB) EnsureCollections(ctx context.Context) error {
	if r.collectionsInitialized.Load() {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()

	if r.collectionsInitialized.Load() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return fmt.Errorf("соединение с базой не установлено")
	}

	opts := reindexer.DefaultNamespaceOptions()

	for _, ns := range namespaceSchemas {
		if err := r.db.WithContext(ctx).OpenNamespace(ns.name, opts, ns.schema); err != nil {
			return fmt.Errorf("ошибка открытия неймспейса %s: %w", ns.name, err)
		}
		// Соединения пула тоже должны знать схему.
		for i, conn := range r.connections {
			if err := conn.WithContext(ctx).OpenNamespace(ns.name, opts, ns.schema); err != nil {
				r.logger.Warn("ошибка открытия неймспейса для соединения из пула",
					zap.String("namespace", ns.name),
					zap.Int("индекс", i),
					zap.Error(err),
				)
			}
		}
	}

	r.collectionsInitialized.Store(true)
	r.logger.Info("коллекции инициализированы", zap.Int("неймспейсов", len(namespaceSchemas)))

	return nil
}

// CheckConnection проверяет связь с сервером (для health check'ов).
func (r *ReindexerDB) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("соединение не установлено")
	}

	if err := r.ping(ctx, db); err != nil {
		r.markFailed(err)
		return fmt.Errorf("проверка связи не прошла: %w", err)
	}

	r.updateHealthStatus(true, nil, r.Health().Connections)
	return nil
}

// Close закрывает все соединения.
func (r *ReindexerDB) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeAll()
	r.updateHealthStatus(false, fmt.Errorf("соединение закрыто"), 0)
	return nil
}

func (r *ReindexerDB) closeAll() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	for _, conn := range r.connections {
		if conn != nil {
			conn.Close()
		}
	}
	r.connections = r.connections[:0]
}

// upsert сохраняет item в ns, предварительно убедившись, что неймспейсы открыты.
func (r *ReindexerDB) upsert(ctx context.Context, ns string, item interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("ошибка проверки коллекций: %w", err)
	}

	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if err := db.Upsert(ns, item); err != nil {
		r.markFailed(err)
		return fmt.Errorf("ошибка сохранения в %s: %w", ns, err)
	}
	return nil
}

// queryAll выполняет запрос, построенный build, и собирает все элементы типа T.
func queryAll[T any](ctx context.Context, r *ReindexerDB, ns string, build func(*reindexer.Query) *reindexer.Query) ([]T, int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return nil, 0, fmt.Errorf("ошибка проверки коллекций: %w", err)
	}

	db, err := r.conn(ctx)
	if err != nil {
		return nil, 0, err
	}

	iter := build(db.Query(ns)).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.markFailed(err)
		return nil, 0, fmt.Errorf("ошибка запроса к %s: %w", ns, err)
	}

	items := make([]T, 0, iter.Count())
	for iter.Next() {
		item, ok := iter.Object().(*T)
		if !ok {
			return nil, 0, fmt.Errorf("внутренняя ошибка десериализации: %T", iter.Object())
		}
		items = append(items, *item)
	}

	return items, iter.TotalCount(), nil
}

// queryOne возвращает первый элемент или domain.ErrNotFound.
func queryOne[T any](ctx context.Context, r *ReindexerDB, ns string, build func(*reindexer.Query) *reindexer.Query) (*T, error) {
	items, _, err := queryAll[T](ctx, r, ns, func(q *reindexer.Query) *reindexer.Query {
		return build(q).Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return &items[0], nil
}

// deleteWhere удаляет элементы по запросу и возвращает их количество.
func (r *ReindexerDB) deleteWhere(ctx context.Context, ns string, build func(*reindexer.Query) *reindexer.Query) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return 0, fmt.Errorf("ошибка проверки коллекций: %w", err)
	}

	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}

	n, err := build(db.Query(ns)).Delete()
	if err != nil {
		r.markFailed(err)
		return 0, fmt.Errorf("ошибка удаления из %s: %w", ns, err)
	}
	return n, nil
}

var _ domain.HealthChecker = (*ReindexerDB)(nil)
