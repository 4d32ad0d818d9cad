package dispatcher

import (
	"taskdispatch/internal/worker"
)

// Ошибки диспетчера
var (
	// ErrRejected оборачивает любую причину отказа в приеме задачи
	ErrRejected = &Error{msg: "task rejected"}

	ErrDisabled       = &Error{msg: "task submission is disabled"}
	ErrNotRunning     = &Error{msg: "dispatcher is not running"}
	ErrAlreadyRunning = &Error{msg: "dispatcher is already running"}
	ErrDraining       = &Error{msg: "dispatcher is draining"}
	ErrInvalidConfig  = &Error{msg: "invalid dispatcher config"}

	// ErrQueueFull переэкспортирован из пула, чтобы вызывающим не нужен был пакет worker
	ErrQueueFull = worker.ErrQueueFull
)

// Error ошибка диспетчера
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}
