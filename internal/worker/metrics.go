package worker

import (
	"sync"
	"time"
)

// Stats метрики пула за все время жизни диспетчера.
//
// Все счетчики меняются под одной блокировкой: завершение задачи обновляет
// processed, среднее время и active одним шагом, поэтому Snapshot никогда
// не видит частично примененное завершение.
type Stats struct {
	mu sync.RWMutex

	processed int64
	failed    int64
	rejected  int64
	active    int
	retiring  int

	// среднее время выполнения в наносекундах, пересчитывается инкрементально
	avg           float64
	lastCompleted time.Time
}

// StatsSnapshot копия метрик на момент чтения
type StatsSnapshot struct {
	ProcessedTasks     int64
	FailedTasks        int64
	RejectedTasks      int64
	ActiveWorkers      int
	RetiringWorkers    int
	AverageProcessTime time.Duration
	LastCompletedAt    time.Time
}

// NewStats создает пустые метрики
func NewStats() *Stats {
	return &Stats{}
}

// Snapshot возвращает согласованную копию метрик
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatsSnapshot{
		ProcessedTasks:     s.processed,
		FailedTasks:        s.failed,
		RejectedTasks:      s.rejected,
		ActiveWorkers:      s.active,
		RetiringWorkers:    s.retiring,
		AverageProcessTime: time.Duration(s.avg),
		LastCompletedAt:    s.lastCompleted,
	}
}

// RecordRejected учитывает отклоненную задачу
func (s *Stats) RecordRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

// recordCompletionLocked обновляет счетчики завершения. Вызывать под s.mu.
func (s *Stats) recordCompletionLocked(d time.Duration, outcome Outcome) {
	// a + (d - a) / (n + 1)
	s.avg += (float64(d) - s.avg) / float64(s.processed+1)
	s.processed++
	if outcome == OutcomeFailed {
		s.failed++
	}
	s.lastCompleted = time.Now()
}

// markBusy переводит воркер в Busy
func (s *Stats) markBusy(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.state.Store(int32(StateBusy))
	if w.retiring {
		s.retiring++
	} else {
		s.active++
	}
}

// markDone фиксирует завершение задачи и переводит воркер в Idle
func (s *Stats) markDone(w *worker, d time.Duration, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.retiring {
		s.retiring--
	} else {
		s.active--
	}
	s.recordCompletionLocked(d, outcome)
	w.processed++
	w.state.Store(int32(StateIdle))
}

// retire помечает воркер как выводимый из пула.
// Занятый воркер перестает считаться активным и дорабатывает текущую задачу как retiring.
func (s *Stats) retire(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.retiring {
		return
	}
	w.retiring = true
	if State(w.state.Load()) == StateBusy {
		s.active--
		s.retiring++
	}
}

// workerProcessed возвращает число задач, выполненных воркером
func (s *Stats) workerProcessed(w *worker) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return w.processed
}
