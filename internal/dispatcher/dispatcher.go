// Package dispatcher управляет пулом воркеров: прием задач, статус,
// изменение конфигурации на лету и жизненный цикл Stopped -> Running -> Draining -> Stopped.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"taskdispatch/internal/worker"

	"go.uber.org/zap"
)

// State состояние диспетчера
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Причины отказа, передаваемые в Recorder
const (
	ReasonDisabled   = "disabled"
	ReasonQueueFull  = "queue_full"
	ReasonNotRunning = "not_running"
)

// Options дополнительные зависимости диспетчера
type Options struct {
	// TaskTimeout ограничивает выполнение одной задачи; 0 означает без ограничения
	TaskTimeout time.Duration
	Recorder    worker.Recorder
}

// Status согласованный снимок состояния диспетчера
type Status struct {
	State              State
	Enabled            bool
	WorkerCount        int
	QueueSize          int
	CurrentQueueSize   int
	ProcessedTasks     int64
	FailedTasks        int64
	RejectedTasks      int64
	ActiveWorkers      int
	RetiringWorkers    int
	AverageProcessTime time.Duration
	LastCompletedAt    time.Time
	Workers            []worker.WorkerInfo
}

// Dispatcher публичная обертка над пулом воркеров
type Dispatcher struct {
	logger      *zap.Logger
	pool        *worker.Pool
	stats       *worker.Stats
	recorder    worker.Recorder
	taskTimeout time.Duration

	// mu сериализует Start, Stop и Reconfigure
	mu sync.Mutex

	cfgMu sync.RWMutex
	cfg   Config

	enabled atomic.Bool
	state   atomic.Int32
}

// New создает остановленный диспетчер
func New(cfg Config, opts Options, logger *zap.Logger) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	stats := worker.NewStats()
	d := &Dispatcher{
		logger:      logger,
		pool:        worker.NewPool(stats, recorder, logger.Named("pool")),
		stats:       stats,
		recorder:    recorder,
		taskTimeout: opts.TaskTimeout,
		cfg:         cfg,
	}
	d.enabled.Store(cfg.Enabled)
	return d, nil
}

// Start запускает пул с текущей конфигурацией
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.State() {
	case StateRunning:
		return ErrAlreadyRunning
	case StateDraining:
		return ErrDraining
	}

	cfg := d.Config()
	err := d.pool.Start(worker.Config{
		Workers:     cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
		TaskTimeout: d.taskTimeout,
	})
	if err != nil {
		if errors.Is(err, worker.ErrPoolDraining) {
			return ErrDraining
		}
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	d.state.Store(int32(StateRunning))
	d.logger.Info("Dispatcher started",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("workers", cfg.WorkerCount),
		zap.Int("queue_size", cfg.QueueSize))
	return nil
}

// Stop прекращает прием задач и дожидается выполнения очереди.
// Если ctx истекает раньше, диспетчер остается в Draining до окончания дренажа,
// а Stop возвращает ошибку, оборачивающую ctx.Err().
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() != StateRunning {
		return nil
	}

	d.state.Store(int32(StateDraining))
	d.logger.Info("Dispatcher draining", zap.Int("queued", d.pool.QueueLen()))

	if err := d.pool.Stop(ctx); err != nil {
		drained := d.pool.Drained()
		go func() {
			<-drained
			d.state.CompareAndSwap(int32(StateDraining), int32(StateStopped))
			d.logger.Info("Dispatcher drained after stop timeout")
		}()
		return fmt.Errorf("dispatcher stop: %w", err)
	}

	d.state.Store(int32(StateStopped))
	d.logger.Info("Dispatcher stopped")
	return nil
}

// Submit ставит задачу в очередь, не блокируясь.
// Отказ возвращается как ошибка, оборачивающая ErrRejected и причину.
func (d *Dispatcher) Submit(task worker.Task) error {
	if task.Handler == nil {
		return worker.ErrNilHandler
	}

	if d.State() != StateRunning {
		return d.reject(ErrNotRunning, ReasonNotRunning)
	}
	if !d.enabled.Load() {
		return d.reject(ErrDisabled, ReasonDisabled)
	}

	err := d.pool.Submit(task)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, worker.ErrQueueFull):
		return d.reject(ErrQueueFull, ReasonQueueFull)
	case errors.Is(err, worker.ErrQueueClosed), errors.Is(err, worker.ErrPoolNotRunning):
		// Stop начался между проверкой состояния и постановкой в очередь
		return d.reject(ErrNotRunning, ReasonNotRunning)
	default:
		return err
	}
}

func (d *Dispatcher) reject(reason error, label string) error {
	d.stats.RecordRejected()
	d.recorder.ObserveRejected(label)
	return fmt.Errorf("%w: %w", ErrRejected, reason)
}

// Reconfigure применяет частичное обновление конфигурации.
// Допустим только в состоянии Running. При ошибке конфигурация не меняется.
func (d *Dispatcher) Reconfigure(patch ConfigPatch) (Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.Config()
	if d.State() != StateRunning {
		return current, ErrNotRunning
	}

	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		return current, err
	}

	// Status читает конфигурацию и счетчики под cfgMu, поэтому пул меняется
	// под той же блокировкой, что и публикация новой конфигурации
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()

	// очередь меняется первой: это единственный шаг, который может не пройти
	if next.QueueSize != current.QueueSize {
		if err := d.pool.ResizeQueue(next.QueueSize); err != nil {
			if errors.Is(err, worker.ErrQueueTooSmall) {
				return current, fmt.Errorf("%w: queueSize %d is below %d queued tasks",
					ErrInvalidConfig, next.QueueSize, d.pool.QueueLen())
			}
			return current, fmt.Errorf("failed to resize queue: %w", err)
		}
	}

	if next.WorkerCount != current.WorkerCount {
		if err := d.pool.Resize(next.WorkerCount); err != nil {
			return current, fmt.Errorf("failed to resize pool: %w", err)
		}
	}

	d.enabled.Store(next.Enabled)
	d.cfg = next

	d.logger.Info("Dispatcher reconfigured",
		zap.Bool("enabled", next.Enabled),
		zap.Int("workers", next.WorkerCount),
		zap.Int("queue_size", next.QueueSize))
	return next, nil
}

// Status возвращает снимок метрик и конфигурации.
// ActiveWorkers никогда не превышает WorkerCount, в том числе во время Reconfigure.
func (d *Dispatcher) Status() Status {
	d.cfgMu.RLock()
	cfg := d.cfg
	snap := d.stats.Snapshot()
	d.cfgMu.RUnlock()

	return Status{
		State:              d.State(),
		Enabled:            cfg.Enabled,
		WorkerCount:        cfg.WorkerCount,
		QueueSize:          cfg.QueueSize,
		CurrentQueueSize:   d.pool.QueueLen(),
		ProcessedTasks:     snap.ProcessedTasks,
		FailedTasks:        snap.FailedTasks,
		RejectedTasks:      snap.RejectedTasks,
		ActiveWorkers:      snap.ActiveWorkers,
		RetiringWorkers:    snap.RetiringWorkers,
		AverageProcessTime: snap.AverageProcessTime,
		LastCompletedAt:    snap.LastCompletedAt,
		Workers:            d.pool.WorkerInfos(),
	}
}

// Config возвращает текущую конфигурацию
func (d *Dispatcher) Config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// State возвращает текущее состояние
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// IsRunning сообщает, принимает ли диспетчер задачи в принципе
func (d *Dispatcher) IsRunning() bool {
	return d.State() == StateRunning
}

type nopRecorder struct{}

func (nopRecorder) ObserveTask(string, time.Duration, worker.Outcome) {}
func (nopRecorder) ObserveRejected(string)                            {}
