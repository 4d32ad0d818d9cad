package service

import (
	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/internal/tasks"

	"go.uber.org/zap"
)

// Services содержит все сервисы приложения
type Services struct {
	Concurrency   *ConcurrencyService
	ConfigWatcher *ConfigWatcher
	Scheduler     *Scheduler
}

// NewServices создает сервисы и регистрирует расписания.
// Некорректные расписания пропускаются с ошибкой в логе.
func NewServices(d *dispatcher.Dispatcher, registry *tasks.Registry, store model.SettingsRepository,
	syncSchedule string, schedules []model.Schedule, logger *zap.Logger) *Services {
	concurrency := NewConcurrencyService(d, registry, store, logger.Named("concurrency"))
	scheduler := NewScheduler(concurrency, logger.Named("scheduler"))

	for _, schedule := range schedules {
		if err := scheduler.Add(schedule); err != nil {
			logger.Error("Failed to register schedule", zap.String("schedule", schedule.Name), zap.Error(err))
		}
	}

	return &Services{
		Concurrency:   concurrency,
		ConfigWatcher: NewConfigWatcher(concurrency, syncSchedule, logger.Named("config_watcher")),
		Scheduler:     scheduler,
	}
}
