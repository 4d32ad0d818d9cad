package worker

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// BoundedQueue очередь задач фиксированной емкости (FIFO).
//
// Enqueue никогда не блокирует: при заполнении возвращает ErrQueueFull.
// Dequeue блокирует до появления задачи, закрытия очереди или отмены контекста.
// После Close очередь отдает оставшиеся задачи и только затем ErrQueueClosed.
type BoundedQueue struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
	closed   bool

	// notify будит одного ожидающего; разбуженный будит следующего, если задачи остались
	notify chan struct{}
	done   chan struct{}
}

// NewBoundedQueue создает очередь заданной емкости
func NewBoundedQueue(capacity int) *BoundedQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedQueue{
		items:    queue.New(),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// newBoundedQueueWith создает очередь и переносит в нее задачи с сохранением порядка
func newBoundedQueueWith(capacity int, tasks []Task) *BoundedQueue {
	q := NewBoundedQueue(capacity)
	for _, t := range tasks {
		q.items.Add(t)
	}
	if len(tasks) > 0 {
		q.signal()
	}
	return q
}

// Enqueue добавляет задачу в хвост очереди
func (q *BoundedQueue) Enqueue(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.items.Length() >= q.capacity {
		return ErrQueueFull
	}

	t.EnqueuedAt = time.Now()
	q.items.Add(t)
	q.signal()
	return nil
}

// Dequeue извлекает задачу из головы очереди
func (q *BoundedQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			t := q.items.Remove().(Task)
			if q.items.Length() > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return t, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Task{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}
}

// TryDequeue извлекает задачу без ожидания
func (q *BoundedQueue) TryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return Task{}, false
	}
	return q.items.Remove().(Task), true
}

// Close запрещает новые задачи. Уже поставленные задачи остаются доступны для Dequeue.
func (q *BoundedQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len возвращает количество задач в очереди
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap возвращает емкость очереди
func (q *BoundedQueue) Cap() int {
	return q.capacity
}

// Closed сообщает, закрыта ли очередь
func (q *BoundedQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// takeAll закрывает очередь и забирает все задачи в порядке FIFO
func (q *BoundedQueue) takeAll() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]Task, 0, q.items.Length())
	for q.items.Length() > 0 {
		tasks = append(tasks, q.items.Remove().(Task))
	}
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return tasks
}

func (q *BoundedQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
