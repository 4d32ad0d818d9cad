package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ConfigWatcher периодически сверяет конфигурацию диспетчера с хранилищем,
// чтобы изменения, сделанные через другой экземпляр, применились и здесь
type ConfigWatcher struct {
	service  *ConcurrencyService
	schedule string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewConfigWatcher создает наблюдатель с cron-расписанием schedule
func NewConfigWatcher(service *ConcurrencyService, schedule string, logger *zap.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		service:  service,
		schedule: schedule,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Start запускает наблюдение
func (w *ConfigWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher is already running")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(w.schedule, w.CheckNow); err != nil {
		return fmt.Errorf("invalid config sync schedule %q: %w", w.schedule, err)
	}
	c.Start()

	w.cron = c
	w.running = true
	w.logger.Info("Config watcher started", zap.String("schedule", w.schedule))
	return nil
}

// Stop останавливает наблюдение и дожидается текущей проверки
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
	w.logger.Info("Config watcher stopped")
}

// CheckNow сверяет конфигурацию немедленно
func (w *ConfigWatcher) CheckNow() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	changed, err := w.service.Sync(ctx)
	if err != nil {
		w.logger.Warn("Config sync failed", zap.Error(err))
		return
	}
	if changed {
		w.logger.Info("Config watcher applied stored changes")
		return
	}
	w.logger.Debug("Config watcher checked for changes")
}
