// Package worker реализует ограниченную очередь задач и пул воркеров с изменяемым размером.
package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State состояние воркера
type State int32

const (
	StateIdle State = iota
	StateBusy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerInfo описание воркера для статуса
type WorkerInfo struct {
	ID        int    `json:"id"`
	State     string `json:"state"`
	Processed int64  `json:"processed"`
}

// worker исполнитель задач из общей очереди
type worker struct {
	id   int
	pool *Pool

	// ctx отменяется сигналом остановки; проверяется только между задачами
	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	// защищены pool.stats.mu
	retiring  bool
	processed int64
}

func newWorker(id int, pool *Pool) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		id:     id,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
}

// stop посылает воркеру кооперативный сигнал остановки
func (w *worker) stop() {
	w.cancel()
}

// run основной цикл воркера
func (w *worker) run() {
	defer w.pool.wg.Done()
	defer w.state.Store(int32(StateStopped))

	logger := w.pool.logger.With(zap.Int("worker_id", w.id))
	logger.Debug("Worker started")

	for {
		if w.ctx.Err() != nil {
			logger.Debug("Worker stopping")
			return
		}

		q := w.pool.currentQueue()
		task, err := q.Dequeue(w.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) && w.pool.currentQueue() != q {
				// очередь пересоздана при изменении емкости
				continue
			}
			logger.Debug("Worker exiting", zap.Error(err))
			return
		}

		w.execute(task, logger)
	}
}

// execute выполняет задачу, фиксируя длительность и результат
func (w *worker) execute(task Task, logger *zap.Logger) {
	w.pool.stats.markBusy(w)

	logger.Debug("Processing task",
		zap.String("task_id", task.ID.String()),
		zap.String("task_name", task.Name),
		zap.Duration("queued_for", time.Since(task.EnqueuedAt)))

	startTime := time.Now()
	err := w.invoke(task)
	duration := time.Since(startTime)

	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			logger.Error("Task panicked",
				zap.String("task_id", task.ID.String()),
				zap.String("task_name", task.Name),
				zap.Any("panic", panicErr.Value),
				zap.String("stack", string(panicErr.Stack)))
		} else {
			logger.Warn("Task failed",
				zap.String("task_id", task.ID.String()),
				zap.String("task_name", task.Name),
				zap.Duration("duration", duration),
				zap.Error(err))
		}
	} else {
		logger.Debug("Task processed successfully",
			zap.String("task_id", task.ID.String()),
			zap.Duration("duration", duration))
	}

	w.pool.stats.markDone(w, duration, outcome)
	w.pool.recorder.ObserveTask(task.Name, duration, outcome)
}

// invoke вызывает обработчик задачи, превращая панику в ошибку
func (w *worker) invoke(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if task.Handler == nil {
		return ErrNilHandler
	}

	ctx, cancel := w.pool.taskContext()
	defer cancel()

	return task.Handler(ctx)
}
