package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler выполняет полезную работу задачи.
// Контекст отменяется по таймауту задачи, а не при остановке воркера.
type Handler func(ctx context.Context) error

// Task представляет единицу работы.
// Очередь хранит задачи по значению, поэтому после постановки в очередь задача неизменна.
type Task struct {
	ID         uuid.UUID
	Name       string
	Handler    Handler
	EnqueuedAt time.Time
}

// NewTask создает задачу с новым идентификатором
func NewTask(name string, handler Handler) Task {
	return Task{
		ID:      uuid.New(),
		Name:    name,
		Handler: handler,
	}
}

// Outcome результат выполнения задачи
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeFailed {
		return "failed"
	}
	return "succeeded"
}

// Recorder получает события выполнения задач (например, для Prometheus).
// Вызывается из горутин воркеров, реализация должна быть потокобезопасной.
type Recorder interface {
	ObserveTask(name string, duration time.Duration, outcome Outcome)
	ObserveRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTask(string, time.Duration, Outcome) {}
func (nopRecorder) ObserveRejected(string)                     {}
