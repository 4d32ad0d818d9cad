// Package tasks строит исполняемые задачи по типу и JSON-параметрам.
package tasks

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"taskdispatch/internal/worker"

	"go.uber.org/zap"
)

// Ошибки построения задач
var (
	ErrUnknownType    = &Error{msg: "unknown task type"}
	ErrInvalidPayload = &Error{msg: "invalid task payload"}
)

// Error ошибка построения задачи
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return e.msg
}

// Factory строит обработчик по параметрам задачи
type Factory func(payload json.RawMessage) (worker.Handler, error)

// Spec описание задачи, пришедшее снаружи (API или расписание)
type Spec struct {
	Type    string          `json:"type" yaml:"type"`
	Name    string          `json:"name,omitempty" yaml:"name"`
	Payload json.RawMessage `json:"payload,omitempty" yaml:"-"`
}

// Registry реестр типов задач
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry создает пустой реестр
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Register добавляет или заменяет фабрику для типа задачи
func (r *Registry) Register(taskType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
	r.logger.Debug("Task type registered", zap.String("type", taskType))
}

// Types возвращает зарегистрированные типы в алфавитном порядке
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build создает задачу по описанию. Имя по умолчанию совпадает с типом.
func (r *Registry) Build(spec Spec) (worker.Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Type]
	r.mu.RUnlock()

	if !ok {
		return worker.Task{}, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}

	handler, err := factory(spec.Payload)
	if err != nil {
		return worker.Task{}, fmt.Errorf("%w for %s: %w", ErrInvalidPayload, spec.Type, err)
	}

	name := spec.Name
	if name == "" {
		name = spec.Type
	}
	return worker.NewTask(name, handler), nil
}

// decodePayload разбирает JSON-параметры; пустые параметры оставляют v без изменений
func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	return json.Unmarshal(payload, v)
}
