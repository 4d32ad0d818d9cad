package worker

import (
	"fmt"
)

// Ошибки пула и очереди
var (
	ErrQueueFull          = &Error{msg: "task queue is full"}
	ErrQueueClosed        = &Error{msg: "task queue is closed"}
	ErrQueueTooSmall      = &Error{msg: "queue capacity is below the number of queued tasks"}
	ErrPoolRunning        = &Error{msg: "worker pool is already running"}
	ErrPoolNotRunning     = &Error{msg: "worker pool is not running"}
	ErrPoolDraining       = &Error{msg: "worker pool is still draining"}
	ErrInvalidWorkerCount = &Error{msg: "worker count must be at least 1"}
	ErrInvalidQueueSize   = &Error{msg: "queue size must be at least 1"}
	ErrNilHandler         = &Error{msg: "task handler is nil"}
)

// Error ошибка воркера
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

// PanicError оборачивает панику, пойманную при выполнении задачи
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
