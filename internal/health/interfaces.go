package health

import "context"

// Pinger определяет интерфейс для проверки доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker сообщает, готов ли диспетчер принимать задачи
type ReadinessChecker interface {
	IsRunning() bool
}
