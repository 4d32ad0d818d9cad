package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config параметры запуска пула
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Validate проверяет параметры пула
func (c Config) Validate() error {
	if c.Workers < 1 {
		return ErrInvalidWorkerCount
	}
	if c.QueueSize < 1 {
		return ErrInvalidQueueSize
	}
	return nil
}

// Pool пул воркеров над общей ограниченной очередью
type Pool struct {
	logger   *zap.Logger
	stats    *Stats
	recorder Recorder

	// mu сериализует Start, Stop, Resize и ResizeQueue
	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
	running bool
	drained chan struct{}
	wg      sync.WaitGroup

	// qmu защищает ссылку на текущую очередь
	qmu   sync.RWMutex
	queue *BoundedQueue

	taskTimeout time.Duration
	baseCtx     context.Context
	baseCancel  context.CancelFunc
}

// Убеждаемся, что Pool реализует PoolInterface
var _ PoolInterface = (*Pool)(nil)

// NewPool создает остановленный пул
func NewPool(stats *Stats, recorder Recorder, logger *zap.Logger) *Pool {
	if stats == nil {
		stats = NewStats()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		logger:   logger,
		stats:    stats,
		recorder: recorder,
		workers:  make(map[int]*worker),
	}
}

// Start создает очередь и запускает воркеры
func (p *Pool) Start(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPoolRunning
	}
	if p.drained != nil {
		select {
		case <-p.drained:
		default:
			return ErrPoolDraining
		}
	}

	p.qmu.Lock()
	p.queue = NewBoundedQueue(cfg.QueueSize)
	p.qmu.Unlock()

	p.taskTimeout = cfg.TaskTimeout
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())
	p.workers = make(map[int]*worker, cfg.Workers)
	p.drained = nil
	p.running = true

	p.spawnLocked(cfg.Workers)

	p.logger.Info("Worker pool started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize))
	return nil
}

// Stop закрывает очередь для новых задач, дожидается выполнения очереди и
// текущих задач и завершает все воркеры. Если ctx истекает раньше, возвращается
// ошибка, а дренаж продолжается в фоне; повторный Start возможен после его окончания.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.logger.Info("Stopping worker pool", zap.Int("queued", p.QueueLen()))
	p.running = false
	p.currentQueue().Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.baseCancel()
		close(done)
	}()
	p.drained = done
	p.workers = make(map[int]*worker)

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out, drain continues in background")
		return fmt.Errorf("stop timeout: %w", ctx.Err())
	}
}

// Drained возвращает канал, закрываемый после завершения всех воркеров.
// Для никогда не останавливавшегося пула возвращает nil.
func (p *Pool) Drained() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drained
}

// Resize меняет количество воркеров.
// При уменьшении воркеры не прерываются: сначала выводятся простаивающие,
// занятые завершают текущую задачу и только потом выходят.
func (p *Pool) Resize(n int) error {
	if n < 1 {
		return ErrInvalidWorkerCount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPoolNotRunning
	}

	current := len(p.workers)
	switch {
	case n > current:
		p.spawnLocked(n - current)
	case n < current:
		for _, w := range p.retireCandidatesLocked(current - n) {
			p.stats.retire(w)
			w.stop()
			delete(p.workers, w.id)
		}
	default:
		return nil
	}

	p.logger.Info("Worker pool resized", zap.Int("from", current), zap.Int("to", n))
	return nil
}

// ResizeQueue пересоздает очередь с новой емкостью, перенося задачи в исходном порядке.
// Возвращает ErrQueueTooSmall, если задач в очереди больше новой емкости.
func (p *Pool) ResizeQueue(capacity int) error {
	if capacity < 1 {
		return ErrInvalidQueueSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPoolNotRunning
	}

	p.qmu.Lock()
	defer p.qmu.Unlock()

	old := p.queue
	if old.Cap() == capacity {
		return nil
	}
	if old.Len() > capacity {
		return ErrQueueTooSmall
	}

	// Submit держит qmu на чтение, поэтому между takeAll и заменой новых задач не появится
	p.queue = newBoundedQueueWith(capacity, old.takeAll())

	p.logger.Info("Task queue recreated",
		zap.Int("from", old.Cap()),
		zap.Int("to", capacity),
		zap.Int("carried", p.queue.Len()))
	return nil
}

// Submit ставит задачу в очередь без блокировки
func (p *Pool) Submit(task Task) error {
	if task.Handler == nil {
		return ErrNilHandler
	}

	p.qmu.RLock()
	defer p.qmu.RUnlock()

	if p.queue == nil {
		return ErrPoolNotRunning
	}
	return p.queue.Enqueue(task)
}

// IsRunning сообщает, запущен ли пул
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Workers возвращает размер активного набора воркеров
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// WorkerInfos возвращает состояние воркеров активного набора, упорядоченное по ID
func (p *Pool) WorkerInfos() []WorkerInfo {
	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	sort.Slice(workers, func(i, j int) bool { return workers[i].id < workers[j].id })

	infos := make([]WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, WorkerInfo{
			ID:        w.id,
			State:     State(w.state.Load()).String(),
			Processed: p.stats.workerProcessed(w),
		})
	}
	return infos
}

// QueueLen возвращает текущее количество задач в очереди
func (p *Pool) QueueLen() int {
	q := p.currentQueue()
	if q == nil {
		return 0
	}
	return q.Len()
}

// QueueCap возвращает емкость текущей очереди
func (p *Pool) QueueCap() int {
	q := p.currentQueue()
	if q == nil {
		return 0
	}
	return q.Cap()
}

// Stats возвращает метрики пула
func (p *Pool) Stats() *Stats {
	return p.stats
}

func (p *Pool) currentQueue() *BoundedQueue {
	p.qmu.RLock()
	defer p.qmu.RUnlock()
	return p.queue
}

func (p *Pool) taskContext() (context.Context, context.CancelFunc) {
	if p.taskTimeout > 0 {
		return context.WithTimeout(p.baseCtx, p.taskTimeout)
	}
	return context.WithCancel(p.baseCtx)
}

// spawnLocked запускает n новых воркеров. Вызывать под p.mu.
func (p *Pool) spawnLocked(n int) {
	for i := 0; i < n; i++ {
		w := newWorker(p.nextID, p)
		p.nextID++
		p.workers[w.id] = w
		p.wg.Add(1)
		go w.run()
	}
}

// retireCandidatesLocked выбирает n воркеров для вывода: сначала простаивающие, затем самые новые
func (p *Pool) retireCandidatesLocked(n int) []*worker {
	candidates := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		candidates = append(candidates, w)
	}
	sort.Slice(candidates, func(i, j int) bool {
		bi := State(candidates[i].state.Load()) == StateBusy
		bj := State(candidates[j].state.Load()) == StateBusy
		if bi != bj {
			return !bi
		}
		return candidates[i].id > candidates[j].id
	})
	return candidates[:n]
}
