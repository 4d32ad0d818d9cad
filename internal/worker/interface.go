package worker

import (
	"context"
)

// PoolInterface определяет интерфейс для пула воркеров
type PoolInterface interface {
	// Start запускает пул воркеров
	Start(cfg Config) error

	// Stop останавливает пул воркеров, дожидаясь выполнения очереди
	Stop(ctx context.Context) error

	// Resize меняет количество воркеров
	Resize(n int) error

	// ResizeQueue пересоздает очередь с новой емкостью
	ResizeQueue(capacity int) error

	// Submit добавляет задачу в очередь
	Submit(task Task) error

	// Workers возвращает количество воркеров
	Workers() int

	// WorkerInfos возвращает состояние воркеров
	WorkerInfos() []WorkerInfo

	// QueueLen возвращает текущий размер очереди
	QueueLen() int

	// QueueCap возвращает емкость очереди
	QueueCap() int

	// IsRunning сообщает, запущен ли пул
	IsRunning() bool
}
