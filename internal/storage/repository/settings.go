// Package repository содержит репозитории для работы с базой данных.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskdispatch/internal/model"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SettingsRepository хранит настройки в таблице settings
type SettingsRepository struct {
	db     *bun.DB
	logger *zap.Logger
}

var _ model.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository создает новый репозиторий настроек
func NewSettingsRepository(db *bun.DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get возвращает настройку по ключу или nil, если ее нет
func (r *SettingsRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	setting := new(model.Setting)

	err := r.db.NewSelect().
		Model(setting).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan setting %s: %w", key, err)
	}

	return setting, nil
}

// GetMany возвращает значения найденных ключей
func (r *SettingsRepository) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	var settings []model.Setting

	err := r.db.NewSelect().
		Model(&settings).
		Where("key IN (?)", bun.In(keys)).
		Order("key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}
	return values, nil
}

// Set сохраняет значения одной транзакцией
func (r *SettingsRepository) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	settings := make([]model.Setting, 0, len(values))
	for key, value := range values {
		settings = append(settings, model.Setting{Key: key, Value: value})
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&settings).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("updated_at = NOW()").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}

	r.logger.Debug("Settings stored", zap.Int("count", len(values)))
	return nil
}

// Ping проверяет доступность базы данных
func (r *SettingsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
