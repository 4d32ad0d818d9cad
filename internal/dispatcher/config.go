package dispatcher

import (
	"fmt"
)

// Config параметры диспетчера, изменяемые через Reconfigure
type Config struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	WorkerCount int  `json:"workerCount" yaml:"workerCount"`
	QueueSize   int  `json:"queueSize" yaml:"queueSize"`
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		WorkerCount: 4,
		QueueSize:   100,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: workerCount must be at least 1, got %d", ErrInvalidConfig, c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queueSize must be at least 1, got %d", ErrInvalidConfig, c.QueueSize)
	}
	return nil
}

// Apply возвращает копию конфигурации с примененными полями патча
func (c Config) Apply(p ConfigPatch) Config {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.WorkerCount != nil {
		c.WorkerCount = *p.WorkerCount
	}
	if p.QueueSize != nil {
		c.QueueSize = *p.QueueSize
	}
	return c
}

// ConfigPatch частичное обновление конфигурации; nil поля не меняются
type ConfigPatch struct {
	Enabled     *bool `json:"enabled,omitempty" yaml:"enabled"`
	WorkerCount *int  `json:"workerCount,omitempty" yaml:"workerCount"`
	QueueSize   *int  `json:"queueSize,omitempty" yaml:"queueSize"`
}

// IsEmpty сообщает, что патч ничего не меняет
func (p ConfigPatch) IsEmpty() bool {
	return p.Enabled == nil && p.WorkerCount == nil && p.QueueSize == nil
}

// PatchFrom строит патч, переводящий текущую конфигурацию в cfg
func PatchFrom(cfg Config) ConfigPatch {
	enabled, workers, queueSize := cfg.Enabled, cfg.WorkerCount, cfg.QueueSize
	return ConfigPatch{
		Enabled:     &enabled,
		WorkerCount: &workers,
		QueueSize:   &queueSize,
	}
}
