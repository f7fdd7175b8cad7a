package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/config"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/handlers"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/monitor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/payments"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/processor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/repositories"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/twofactor"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/usecases"
	"github.com/paulohenriquevn/lovedcrm-sub002/pkg/logger"
)

const (
	// Время на аккуратное завершение работы сервера (доделать текущие запросы).
	shutdownTimeout = 30 * time.Second

	requestTimeout = 30 * time.Second
	metricsPrefix  = "lovedcrm"
)

// App держит вместе все зависимости и управляет их жизненным циклом (старт/стоп).
type App struct {
	config     *config.Config
	configPath string
	logger     *zap.Logger
	clock      clockwork.Clock

	db        *repositories.ReindexerDB
	redis     *redis.Client
	cache     *cache.Service
	monitor   *monitor.Monitor
	metrics   *monitor.Metrics
	events    *processor.EventProcessor
	features  *usecases.FeatureGate
	analytics *usecases.AnalyticsUsecase
	leads     *usecases.LeadUsecase
	billing   *usecases.BillingUsecase
	prefs     *usecases.PreferencesUsecase
	twoFactor *usecases.TwoFactorUsecase
	health    *usecases.HealthUsecase
	server    *http.Server

	// Защищает от случайного повторного вызова Initialize().
	initOnce sync.Once
	initErr  error

	// Context позволяет отменить все фоновые задачи разом при выключении.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp создает "пустую" заготовку приложения.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
		clock:  clockwork.NewRealClock(),
	}
}

// Initialize запускает настройку всех компонентов. Повторный вызов вернет ту же ошибку.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize: сборка приложения. Порядок важен: конфиг и логгер, затем хранилища,
// затем бизнес-логика и HTTP.
func (a *App) doInitialize() error {
	// 1. Загружаем настройки. Если файла нет, работаем на значениях по умолчанию и ENV.
	a.configPath = os.Getenv("APP_CONFIG_PATH")
	if a.configPath == "" {
		a.configPath = "config.yaml"
	}

	loadErr := config.Load(a.configPath)
	if loadErr != nil {
		if err := config.Load(""); err != nil {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
		a.configPath = ""
	}
	a.config = config.Get()

	// 2. Логгер с уровнем из конфига.
	if err := logger.Init(a.config.Log.Level, a.config.Log.Development); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()
	if loadErr != nil {
		a.logger.Warn("не удалось загрузить конфиг-файл, используем значения по умолчанию и ENV",
			zap.Error(loadErr),
		)
	}
	a.logger.Info("конфигурация загружена",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.Bool("cache_enabled", a.config.Cache.Enabled),
	)

	// 3. База данных. Без нее сервис не стартует.
	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("ошибка инициализации репозитория: %w", err)
	}

	// 4. Монитор запросов и кэш аналитики. Недоступный Redis не мешает старту.
	a.metrics = monitor.NewMetrics(metricsPrefix)
	a.monitor = monitor.New(a.logger,
		monitor.WithThreshold(a.config.Cache.SlowQueryThreshold),
		monitor.WithMetrics(a.metrics),
	)
	a.initializeCache()

	// 5. Доменные события: инвалидация кэша подписана на них.
	a.events = processor.NewEventProcessor(
		a.config.Concurrency.EventWorkers,
		a.config.Concurrency.EventQueueSize,
		a.logger,
	)
	a.events.Subscribe(a.cache.Invalidator().Handle)
	a.events.Start()

	// 6. Бизнес-логика.
	if err := a.initializeUsecases(); err != nil {
		return err
	}

	// 7. HTTP сервер.
	a.initializeServer()

	a.logger.Info("приложение готово к работе")
	return nil
}

// initializeDatabase подключается к Reindexer (с ретраями внутри пула) и проверяет коллекции.
func (a *App) initializeDatabase() error {
	db, err := repositories.NewReindexerDB(
		a.config.Reindexer.DSN,
		a.config.Concurrency.DBMaxConnections,
		a.logger,
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	if err := db.CheckConnection(ctx); err != nil {
		db.Close()
		return fmt.Errorf("нет связи с Reindexer: %w", err)
	}
	if err := db.EnsureCollections(ctx); err != nil {
		db.Close()
		return fmt.Errorf("проблема с коллекциями: %w", err)
	}

	a.db = db
	a.logger.Info("репозиторий успешно инициализирован", zap.String("dsn", a.config.Reindexer.DSN))
	return nil
}

// initializeCache решает один раз при старте, работает ли кэш.
func (a *App) initializeCache() {
	opts := []cache.Option{
		cache.WithRecorder(a.monitor),
		cache.WithDefaultFreshness(a.config.Cache.DefaultFreshnessHours),
	}

	var store cache.Store
	if a.config.Cache.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        a.config.Redis.Addr,
			Password:    a.config.Redis.Password,
			DB:          a.config.Redis.DB,
			DialTimeout: a.config.Redis.DialTimeout,
			PoolSize:    a.config.Redis.PoolSize,
		})
		store = cache.NewRedisStore(a.ctx, a.redis, a.logger)
	} else {
		a.logger.Info("кэш аналитики отключен конфигурацией")
		store = cache.NewRedisStore(a.ctx, nil, a.logger)
		opts = append(opts, cache.Disabled())
	}

	a.cache = cache.NewService(store, a.logger, opts...)
}

func (a *App) initializeUsecases() error {
	cfg := a.config

	leadRepo := repositories.NewLeadRepository(a.db, a.logger)
	analyticsRepo := repositories.NewAnalyticsRepository(a.db)
	subsRepo := repositories.NewSubscriptionRepository(a.db)

	a.analytics = usecases.NewAnalyticsUsecase(
		analyticsRepo,
		a.cache,
		a.monitor,
		a.logger,
		cfg.Concurrency.HTTPMaxWorkers,
		a.clock,
	)
	a.leads = usecases.NewLeadUsecase(leadRepo, a.events, a.logger, cfg.Concurrency.HTTPMaxWorkers, a.clock)

	features, err := usecases.NewFeatureGate(a.ctx, subsRepo, cfg.Cache.FeatureCacheTTL, a.logger)
	if err != nil {
		return err
	}
	a.features = features

	gateway := payments.NewClient(payments.Config{
		BaseURL:          cfg.Payments.BaseURL,
		APIKey:           cfg.Payments.APIKey,
		Timeout:          cfg.Payments.Timeout,
		FailureThreshold: cfg.Payments.BreakerThreshold,
	}, a.logger)
	a.billing = usecases.NewBillingUsecase(subsRepo, gateway, a.features, a.logger, a.clock)

	a.prefs = usecases.NewPreferencesUsecase(repositories.NewPreferencesRepository(a.db), a.logger, a.clock)

	auth := twofactor.NewAuthenticator(cfg.TwoFactor.Issuer, cfg.TwoFactor.BackupCodeCount, twofactor.WithClock(a.clock))
	a.twoFactor = usecases.NewTwoFactorUsecase(repositories.NewTwoFactorRepository(a.db), auth, a.logger, a.clock)

	a.health = usecases.NewHealthUsecase(
		a.db,
		analyticsRepo,
		a.cache,
		a.monitor,
		cfg.Health.ViewStaleAfter,
		a.logger,
		a.clock,
	)
	return nil
}

// initializeServer настраивает HTTP-роутинг и middleware.
func (a *App) initializeServer() {
	cfg := a.config

	router := handlers.NewRouter(handlers.RouterConfig{
		Analytics:      handlers.NewAnalyticsHandler(a.analytics, a.logger),
		Leads:          handlers.NewLeadHandler(a.leads, a.logger),
		Account:        handlers.NewAccountHandler(a.billing, a.prefs, a.twoFactor, a.logger),
		Health:         handlers.NewHealthHandler(a.health, a.logger),
		Metrics:        a.metrics.Handler(),
		Auth:           middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, a.logger),
		Features:       a.features,
		RateLimiter:    middleware.NewRateLimiter(cfg.Concurrency.HTTPMaxWorkers*60, time.Minute, a.clock),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: requestTimeout,
		Logger:         a.logger,
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartBackgroundJobs запускает периодическую проверку здоровья и слежение за конфигом.
func (a *App) StartBackgroundJobs() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.health.Run(a.ctx, a.config.Health.CheckInterval)
		a.logger.Info("фоновая проверка здоровья остановлена")
	}()

	if a.configPath != "" {
		config.Watch(a.configPath, func(cfg *config.Config, err error) {
			if err != nil {
				a.logger.Warn("новый конфиг не прошел проверку, оставляем прежний", zap.Error(err))
				return
			}
			// Подключения и пулы уже созданы: изменения вступят в силу после перезапуска.
			a.logger.Info("конфиг-файл изменен",
				zap.String("log_level", cfg.Log.Level),
				zap.Bool("cache_enabled", cfg.Cache.Enabled),
			)
		})
	}
}

// Start запускает сервер. Блокирует только горутину сервера.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("запуск HTTP сервера", zap.String("адрес", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("сервер упал с ошибкой", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown аккуратно останавливает приложение: сначала входящий трафик, затем
// очередь событий, затем хранилища.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("начинаем остановку приложения...")

		a.cancel()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("ошибка при остановке сервера", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		// Очередь дорабатывает уже принятые события, поэтому останавливаем ее до Redis.
		if a.events != nil {
			a.events.Stop()
		}

		if a.features != nil {
			if err := a.features.Close(); err != nil {
				a.logger.Warn("ошибка при закрытии кэша тарифов", zap.Error(err))
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.Warn("ошибка при закрытии Redis", zap.Error(err))
			}
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Error("ошибка при закрытии БД", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("все фоновые процессы завершены")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("таймаут ожидания завершения процессов (принудительный выход)")
		}

		a.logger.Info("приложение остановлено успешно")
		_ = a.logger.Sync()
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка запуска: %v\n", err)
		os.Exit(1)
	}

	// Ожидание сигналов завершения от ОС (Ctrl+C или docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка при остановке: %v\n", err)
		os.Exit(1)
	}
}
