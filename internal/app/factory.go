// Package app содержит фабрику компонентов приложения.
package app

import (
	"context"
	"fmt"
	"net/http"

	"taskdispatch/internal/api"
	"taskdispatch/internal/config"
	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/health"
	"taskdispatch/internal/middleware"
	"taskdispatch/internal/model"
	promexp "taskdispatch/internal/observability/prometheus"
	"taskdispatch/internal/service"
	"taskdispatch/internal/storage"
	"taskdispatch/internal/tasks"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ComponentFactory создает компоненты приложения
type ComponentFactory struct {
	config *config.Config
	logger *zap.Logger
}

// NewComponentFactory создает новую фабрику компонентов
func NewComponentFactory(config *config.Config, logger *zap.Logger) *ComponentFactory {
	if logger == nil {
		panic("Logger cannot be nil")
	}
	if config == nil {
		logger.Fatal("Config cannot be nil")
	}

	return &ComponentFactory{
		config: config,
		logger: logger,
	}
}

// CreateDatabase создает подключение к PostgreSQL; без DSN возвращает nil
func (f *ComponentFactory) CreateDatabase(ctx context.Context) (*storage.Postgres, error) {
	if f.config.DatabaseURL == "" {
		f.logger.Info("DB_DSN is empty, settings are kept in memory")
		return nil, nil
	}

	db, err := storage.NewPostgres(ctx, storage.PostgresConfig{
		DSN:        f.config.DatabaseURL,
		MaxRetries: f.config.DBMaxRetries,
		RetryDelay: f.config.DBRetryDelay,
	}, f.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	f.logger.Info("Database connection created successfully")
	return db, nil
}

// CreateStore возвращает хранилище настроек поверх db или в памяти
func (f *ComponentFactory) CreateStore(db *storage.Postgres) model.SettingsRepository {
	if db == nil {
		return storage.NewMemoryStore()
	}
	return db.GetSettingsRepository()
}

// CreateMetrics создает реестр Prometheus и Recorder задач.
// При выключенных метриках возвращает nil, nil.
func (f *ComponentFactory) CreateMetrics() (*prom.Registry, *promexp.Recorder, error) {
	if !f.config.MetricsEnabled {
		f.logger.Info("Metrics are disabled")
		return nil, nil, nil
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder, err := promexp.NewRecorder(registry, promexp.RecorderOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}
	return registry, recorder, nil
}

// CreateDispatcher создает диспетчер. Сохраненная конфигурация имеет приоритет над окружением.
func (f *ComponentFactory) CreateDispatcher(ctx context.Context, store model.SettingsRepository, recorder *promexp.Recorder) (*dispatcher.Dispatcher, error) {
	cfg, found, err := service.LoadStoredConfig(ctx, store, f.config.Dispatcher)
	if err != nil {
		f.logger.Warn("Ignoring stored dispatcher config", zap.Error(err))
		cfg = f.config.Dispatcher
	} else if found {
		f.logger.Info("Using stored dispatcher config",
			zap.Bool("enabled", cfg.Enabled),
			zap.Int("worker_count", cfg.WorkerCount),
			zap.Int("queue_size", cfg.QueueSize))
	}

	opts := dispatcher.Options{TaskTimeout: f.config.TaskTimeout}
	if recorder != nil {
		opts.Recorder = recorder
	}

	d, err := dispatcher.New(cfg, opts, f.logger.Named("dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return d, nil
}

// CreateTaskRegistry создает реестр задач со встроенными типами
func (f *ComponentFactory) CreateTaskRegistry() *tasks.Registry {
	logger := f.logger.Named("tasks")
	client := tasks.NewHTTPClient(tasks.HTTPClientConfig{
		MaxIdleConns:          f.config.HTTPClientConfig.MaxIdleConns,
		MaxIdleConnsPerHost:   f.config.HTTPClientConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:       f.config.HTTPClientConfig.IdleConnTimeout,
		TLSHandshakeTimeout:   f.config.HTTPClientConfig.TLSHandshakeTimeout,
		ResponseHeaderTimeout: f.config.HTTPClientConfig.ResponseHeaderTimeout,
	}, logger)

	registry := tasks.NewRegistry(logger)
	tasks.RegisterBuiltins(registry, client, tasks.RetryConfig{
		MaxRetries:        f.config.RetryConfig.MaxRetries,
		InitialDelay:      f.config.RetryConfig.InitialDelay,
		MaxDelay:          f.config.RetryConfig.MaxDelay,
		BackoffMultiplier: f.config.RetryConfig.BackoffMultiplier,
	})
	return registry
}

// CreateServices создает все сервисы
func (f *ComponentFactory) CreateServices(d *dispatcher.Dispatcher, registry *tasks.Registry, store model.SettingsRepository) *service.Services {
	services := service.NewServices(d, registry, store, f.config.ConfigSyncSchedule, f.config.Schedules, f.logger)
	f.logger.Info("Services created successfully", zap.Int("schedules", len(f.config.Schedules)))
	return services
}

// CreateSnapshotPoller создает поллер статуса; без реестра возвращает nil
func (f *ComponentFactory) CreateSnapshotPoller(registry *prom.Registry, d *dispatcher.Dispatcher) (*promexp.SnapshotPoller, error) {
	if registry == nil {
		return nil, nil
	}
	poller, err := promexp.NewSnapshotPoller(registry, d, f.config.MetricsPollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot poller: %w", err)
	}
	return poller, nil
}

// CreateMiddleware создает middleware
func (f *ComponentFactory) CreateMiddleware() *middleware.Stack {
	stack := middleware.New(middleware.Options{
		AdminToken: f.config.AdminToken,
		RateLimit:  f.config.RateLimitRequests,
		RateWindow: f.config.RateLimitWindow,
	}, f.logger.Named("http"))
	if f.config.AdminToken == "" {
		f.logger.Warn("ADMIN_TOKEN is empty, mutating endpoints are not protected")
	}
	return stack
}

// CreateAPIServer создает HTTP API
func (f *ComponentFactory) CreateAPIServer(services *service.Services, stack *middleware.Stack, registry *prom.Registry) *api.Server {
	var metrics http.Handler
	if registry != nil {
		metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(f.logger.Named("metrics")),
		})
	}

	handler := NewRouter(services, stack, metrics, f.config.ShutdownTimeout, f.logger.Named("api"))
	server := api.NewServer(f.config.HTTPPort, handler, f.logger)
	f.logger.Info("API server created", zap.String("port", f.config.HTTPPort))
	return server
}

// CreateHealthServer создает сервер health check
func (f *ComponentFactory) CreateHealthServer(d *dispatcher.Dispatcher, store model.SettingsRepository) *health.Server {
	if !f.config.HealthCheckEnabled {
		f.logger.Info("Health check server is disabled")
		return nil
	}

	server := health.NewServer(f.config.HealthPort, f.logger.Named("health"), d, store)
	f.logger.Info("Health check server created", zap.String("port", f.config.HealthPort))
	return server
}

// CreateApp создает приложение со всеми зависимостями
func (f *ComponentFactory) CreateApp(ctx context.Context) (*App, error) {
	db, err := f.CreateDatabase(ctx)
	if err != nil {
		return nil, err
	}
	store := f.CreateStore(db)

	closeDB := func() {
		if db != nil {
			if err := db.Close(); err != nil {
				f.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	registry, recorder, err := f.CreateMetrics()
	if err != nil {
		closeDB()
		return nil, err
	}

	d, err := f.CreateDispatcher(ctx, store, recorder)
	if err != nil {
		closeDB()
		return nil, err
	}

	poller, err := f.CreateSnapshotPoller(registry, d)
	if err != nil {
		closeDB()
		return nil, err
	}

	services := f.CreateServices(d, f.CreateTaskRegistry(), store)
	stack := f.CreateMiddleware()

	a := &App{
		config:     f.config,
		logger:     f.logger,
		db:         db,
		dispatcher: d,
		services:   services,
		poller:     poller,
		middleware: stack,
		api:        f.CreateAPIServer(services, stack, registry),
		health:     f.CreateHealthServer(d, store),
	}

	f.logger.Info("Application created successfully with all dependencies")
	return a, nil
}
