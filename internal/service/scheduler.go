package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskdispatch/internal/model"
	"taskdispatch/internal/tasks"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrScheduleNotFound расписание с таким именем не зарегистрировано
var ErrScheduleNotFound = errors.New("schedule not found")

// scheduledEntry расписание, добавленное в cron
type scheduledEntry struct {
	schedule model.Schedule
	spec     tasks.Spec
	entryID  cron.EntryID
	stats    *model.ScheduleStats
}

// Scheduler отправляет задачи в диспетчер по cron-расписанию
type Scheduler struct {
	service *ConcurrencyService
	logger  *zap.Logger

	mu      sync.RWMutex
	cron    *cron.Cron
	entries map[string]*scheduledEntry
	running bool
}

// NewScheduler создает планировщик
func NewScheduler(service *ConcurrencyService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[string]*scheduledEntry),
	}
}

// Add регистрирует расписание. Тип задачи и параметры проверяются сразу,
// чтобы ошибка конфигурации обнаружилась при старте, а не при срабатывании.
func (s *Scheduler) Add(schedule model.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule.Name, err)
	}

	spec := tasks.Spec{Type: schedule.Type, Name: schedule.Name}
	if len(schedule.Payload) > 0 {
		payload, err := json.Marshal(schedule.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of schedule %q: %w", schedule.Name, err)
		}
		spec.Payload = payload
	}
	if _, err := s.service.registry.Build(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[schedule.Name]; exists {
		return fmt.Errorf("schedule %q is already registered", schedule.Name)
	}

	entry := &scheduledEntry{
		schedule: schedule,
		spec:     spec,
		stats:    model.NewScheduleStats(schedule),
	}
	id, err := s.cron.AddFunc(schedule.Spec, func() { s.submit(entry) })
	if err != nil {
		return fmt.Errorf("failed to add schedule %q to cron: %w", schedule.Name, err)
	}
	entry.entryID = id
	s.entries[schedule.Name] = entry

	s.logger.Info("Added schedule to cron",
		zap.String("schedule", schedule.Name),
		zap.String("type", schedule.Type),
		zap.String("cron_expression", schedule.Spec))
	return nil
}

// Start запускает планировщик
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", zap.Int("schedules", len(s.entries)))
	return nil
}

// Stop останавливает планировщик и дожидается текущих отправок
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// Trigger немедленно отправляет задачу расписания name и возвращает ее идентификатор
func (s *Scheduler) Trigger(name string) (uuid.UUID, error) {
	s.mu.RLock()
	entry, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrScheduleNotFound, name)
	}
	return s.submit(entry)
}

// submit строит новую задачу и отправляет ее; при срабатывании cron отказ только логируется
func (s *Scheduler) submit(entry *scheduledEntry) (uuid.UUID, error) {
	id, err := s.service.SubmitTask(entry.spec)
	entry.stats.UpdateRunStats(err == nil, err)

	if err != nil {
		s.logger.Warn("Scheduled task was not accepted",
			zap.String("schedule", entry.schedule.Name),
			zap.Error(err))
		return uuid.Nil, err
	}
	s.logger.Debug("Scheduled task submitted",
		zap.String("schedule", entry.schedule.Name),
		zap.String("task_id", id.String()))
	return id, nil
}

// GetStatus возвращает статистику расписаний, упорядоченную по имени
func (s *Scheduler) GetStatus() []model.ScheduleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]model.ScheduleInfo, 0, len(s.entries))
	for _, entry := range s.entries {
		var next time.Time
		if s.running {
			next = s.cron.Entry(entry.entryID).Next
		}
		infos = append(infos, entry.stats.Snapshot(next))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
