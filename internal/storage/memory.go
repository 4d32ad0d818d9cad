package storage

import (
	"context"
	"sync"
	"time"

	"taskdispatch/internal/model"
)

// MemoryStore хранилище настроек в памяти процесса.
// Используется, когда DB_DSN не задан, и в тестах.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]model.Setting

	// failErr, если задана, возвращается всеми операциями
	failErr error
}

var _ model.SettingsRepository = (*MemoryStore)(nil)

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]model.Setting)}
}

// FailWith заставляет все операции возвращать err; nil снимает отказ
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Get возвращает настройку по ключу или nil, если ее нет
func (m *MemoryStore) Get(_ context.Context, key string) (*model.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	s, ok := m.settings[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// GetMany возвращает значения найденных ключей
func (m *MemoryStore) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if s, ok := m.settings[key]; ok {
			values[key] = s.Value
		}
	}
	return values, nil
}

// Set сохраняет значения атомарно
func (m *MemoryStore) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	now := time.Now()
	for key, value := range values {
		s, ok := m.settings[key]
		if !ok {
			s = model.Setting{ID: len(m.settings) + 1, Key: key}
			s.CreatedAt = now
		}
		s.Value = value
		s.UpdatedAt = now
		m.settings[key] = s
	}
	return nil
}

// Ping проверяет доступность хранилища
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failErr
}
