package model

import (
	"context"

	"github.com/uptrace/bun"
)

// Ключи настроек диспетчера в хранилище
const (
	SettingConcurrentEnabled     = "concurrent.enabled"
	SettingConcurrentWorkerCount = "concurrent.workerCount"
	SettingConcurrentQueueSize   = "concurrent.queueSize"
)

// Setting представляет сохраненную настройку
type Setting struct {
	bun.BaseModel `bun:"table:taskdispatch.settings"`

	ID          int    `bun:"id,pk,autoincrement" json:"id"`
	Key         string `bun:"key,unique,notnull" json:"key"`
	Value       string `bun:"value,notnull" json:"value"`
	Description string `bun:"description" json:"description"`
	TimestampedModel
}

// SettingsRepository определяет интерфейс хранилища настроек.
// Get возвращает nil без ошибки, если ключа нет.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*Setting, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Ping(ctx context.Context) error
}
