// Package service содержит бизнес-логику управления диспетчером задач.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/internal/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotPersisted означает, что конфигурация применена, но не сохранена
var ErrNotPersisted = errors.New("config applied but not persisted")

// ConcurrencyService связывает диспетчер, реестр задач и хранилище настроек
type ConcurrencyService struct {
	dispatcher *dispatcher.Dispatcher
	registry   *tasks.Registry
	store      model.SettingsRepository
	logger     *zap.Logger

	// mu сериализует изменение конфигурации из API и из синхронизации
	mu sync.Mutex
}

// NewConcurrencyService создает сервис
func NewConcurrencyService(d *dispatcher.Dispatcher, registry *tasks.Registry, store model.SettingsRepository, logger *zap.Logger) *ConcurrencyService {
	return &ConcurrencyService{
		dispatcher: d,
		registry:   registry,
		store:      store,
		logger:     logger,
	}
}

// Status возвращает статус диспетчера
func (s *ConcurrencyService) Status() dispatcher.Status {
	return s.dispatcher.Status()
}

// State возвращает состояние диспетчера
func (s *ConcurrencyService) State() dispatcher.State {
	return s.dispatcher.State()
}

// Start запускает диспетчер
func (s *ConcurrencyService) Start() error {
	return s.dispatcher.Start()
}

// Stop останавливает диспетчер с дренажем очереди
func (s *ConcurrencyService) Stop(ctx context.Context) error {
	return s.dispatcher.Stop(ctx)
}

// UpdateConfig применяет патч и сохраняет итоговую конфигурацию.
// Ошибка сохранения не откатывает примененную конфигурацию и оборачивает ErrNotPersisted.
func (s *ConcurrencyService) UpdateConfig(ctx context.Context, patch dispatcher.ConfigPatch) (dispatcher.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.dispatcher.Reconfigure(patch)
	if err != nil {
		return cfg, err
	}

	if err := s.store.Set(ctx, encodeConfig(cfg)); err != nil {
		s.logger.Error("Failed to persist dispatcher config", zap.Error(err))
		return cfg, fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}

	s.logger.Info("Dispatcher config updated",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("worker_count", cfg.WorkerCount),
		zap.Int("queue_size", cfg.QueueSize))
	return cfg, nil
}

// Sync подтягивает сохраненную конфигурацию и применяет ее, если она отличается от текущей.
// Возвращает true, если конфигурация изменилась.
func (s *ConcurrencyService) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.dispatcher.Config()
	stored, found, err := LoadStoredConfig(ctx, s.store, current)
	if err != nil {
		return false, err
	}
	if !found || stored == current {
		return false, nil
	}
	if !s.dispatcher.IsRunning() {
		s.logger.Debug("Stored config differs but dispatcher is not running")
		return false, nil
	}

	if _, err := s.dispatcher.Reconfigure(dispatcher.PatchFrom(stored)); err != nil {
		return false, fmt.Errorf("failed to apply stored config: %w", err)
	}

	s.logger.Info("Applied stored dispatcher config",
		zap.Bool("enabled", stored.Enabled),
		zap.Int("worker_count", stored.WorkerCount),
		zap.Int("queue_size", stored.QueueSize))
	return true, nil
}

// SubmitTask строит задачу по описанию и отправляет ее в диспетчер
func (s *ConcurrencyService) SubmitTask(spec tasks.Spec) (uuid.UUID, error) {
	task, err := s.registry.Build(spec)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.dispatcher.Submit(task); err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

// TaskTypes возвращает доступные типы задач
func (s *ConcurrencyService) TaskTypes() []string {
	return s.registry.Types()
}

// Ping проверяет доступность хранилища настроек
func (s *ConcurrencyService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// LoadStoredConfig накладывает сохраненные значения на defaults.
// found сообщает, было ли сохранено хоть одно значение.
func LoadStoredConfig(ctx context.Context, store model.SettingsRepository, defaults dispatcher.Config) (dispatcher.Config, bool, error) {
	values, err := store.GetMany(ctx,
		model.SettingConcurrentEnabled,
		model.SettingConcurrentWorkerCount,
		model.SettingConcurrentQueueSize)
	if err != nil {
		return defaults, false, fmt.Errorf("failed to load stored config: %w", err)
	}
	if len(values) == 0 {
		return defaults, false, nil
	}

	cfg := defaults
	if v, ok := values[model.SettingConcurrentEnabled]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return defaults, false, fmt.Errorf("bad stored %s %q: %w", model.SettingConcurrentEnabled, v, err)
		}
		cfg.Enabled = b
	}
	if v, ok := values[model.SettingConcurrentWorkerCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return defaults, false, fmt.Errorf("bad stored %s %q: %w", model.SettingConcurrentWorkerCount, v, err)
		}
		cfg.WorkerCount = n
	}
	if v, ok := values[model.SettingConcurrentQueueSize]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return defaults, false, fmt.Errorf("bad stored %s %q: %w", model.SettingConcurrentQueueSize, v, err)
		}
		cfg.QueueSize = n
	}

	if err := cfg.Validate(); err != nil {
		return defaults, false, fmt.Errorf("stored config is invalid: %w", err)
	}
	return cfg, true, nil
}

func encodeConfig(cfg dispatcher.Config) map[string]string {
	return map[string]string{
		model.SettingConcurrentEnabled:     strconv.FormatBool(cfg.Enabled),
		model.SettingConcurrentWorkerCount: strconv.Itoa(cfg.WorkerCount),
		model.SettingConcurrentQueueSize:   strconv.Itoa(cfg.QueueSize),
	}
}
