package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskdispatch/internal/api"
	"taskdispatch/internal/config"
	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/health"
	"taskdispatch/internal/middleware"
	promexp "taskdispatch/internal/observability/prometheus"
	"taskdispatch/internal/service"
	"taskdispatch/internal/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const middlewareCleanupSchedule = "@every 5m"

// App собранное приложение: диспетчер, сервисы и HTTP-серверы
type App struct {
	config     *config.Config
	logger     *zap.Logger
	db         *storage.Postgres
	dispatcher *dispatcher.Dispatcher
	services   *service.Services
	poller     *promexp.SnapshotPoller
	middleware *middleware.Stack
	api        *api.Server
	health     *health.Server

	maintenance *cron.Cron
	wg          sync.WaitGroup
	errCh       chan error
	cancel      context.CancelFunc
}

// NewAppWithFactory создает приложение через фабрику компонентов
func NewAppWithFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewComponentFactory(cfg, logger).CreateApp(ctx)
}

// Dispatcher возвращает диспетчер приложения
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Start запускает диспетчер, фоновые сервисы и HTTP-серверы
func (a *App) Start() error {
	a.logger.Info("Starting application")

	if err := a.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.errCh = make(chan error, 2)

	if a.poller != nil {
		a.poller.Start(ctx)
	}

	if err := a.services.Scheduler.Start(); err != nil {
		a.logger.Error("Failed to start scheduler", zap.Error(err))
	} else {
		a.logger.Info("Scheduler started successfully")
	}

	if err := a.services.ConfigWatcher.Start(); err != nil {
		a.logger.Error("Failed to start config watcher", zap.Error(err))
	} else {
		a.logger.Info("Config watcher started successfully")
	}

	a.maintenance = cron.New()
	if _, err := a.maintenance.AddFunc(middlewareCleanupSchedule, a.middleware.Cleanup); err != nil {
		a.logger.Error("Failed to schedule middleware cleanup", zap.Error(err))
	}
	a.maintenance.Start()

	a.serve("api", a.api.Start)
	if a.health != nil {
		a.serve("health", a.health.Start)
	}

	a.logger.Info("Application started successfully")
	return nil
}

// serve запускает сервер в горутине; ошибка сервера передается в Run
func (a *App) serve(name string, start func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := start(); err != nil {
			a.logger.Error("Server failed", zap.String("server", name), zap.Error(err))
			a.errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

// Run запускает приложение и блокируется до отмены ctx или падения сервера
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown requested")
	case runErr = <-a.errCh:
	}

	return errors.Join(runErr, a.Stop())
}

// Stop останавливает приложение: сначала источники задач, затем дренаж очереди
func (a *App) Stop() error {
	a.logger.Info("Stopping application gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	var errs []error

	a.services.Scheduler.Stop()
	a.services.ConfigWatcher.Stop()
	if a.maintenance != nil {
		<-a.maintenance.Stop().Done()
	}

	if err := a.api.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api server: %w", err))
	}

	start := time.Now()
	if err := a.dispatcher.Stop(ctx); err != nil {
		a.logger.Warn("Dispatcher did not drain in time", zap.Error(err))
		errs = append(errs, err)
	} else {
		a.logger.Info("Dispatcher drained", zap.Duration("duration", time.Since(start)))
	}

	if a.poller != nil {
		a.poller.CollectOnce()
		a.poller.Stop()
	}

	if a.health != nil {
		if err := a.health.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	a.logger.Info("Application stopped")
	return errors.Join(errs...)
}
