package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/internal/storage"
	"taskdispatch/internal/tasks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func newTestService(t *testing.T, cfg dispatcher.Config) (*ConcurrencyService, *storage.MemoryStore) {
	t.Helper()

	d, err := dispatcher.New(cfg, dispatcher.Options{TaskTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})

	registry := tasks.NewRegistry(zap.NewNop())
	tasks.RegisterBuiltins(registry, http.DefaultClient, tasks.DefaultRetryConfig())

	store := storage.NewMemoryStore()
	return NewConcurrencyService(d, registry, store, zap.NewNop()), store
}

func TestConcurrencyService_UpdateConfigPersists(t *testing.T) {
	svc, store := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10})
	ctx := context.Background()

	cfg, err := svc.UpdateConfig(ctx, dispatcher.ConfigPatch{WorkerCount: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Config{Enabled: true, WorkerCount: 5, QueueSize: 10}, cfg)

	values, err := store.GetMany(ctx,
		model.SettingConcurrentEnabled,
		model.SettingConcurrentWorkerCount,
		model.SettingConcurrentQueueSize)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		model.SettingConcurrentEnabled:     "true",
		model.SettingConcurrentWorkerCount: "5",
		model.SettingConcurrentQueueSize:   "10",
	}, values)
}

func TestConcurrencyService_InvalidConfigIsNotStored(t *testing.T) {
	svc, store := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10})
	ctx := context.Background()

	_, err := svc.UpdateConfig(ctx, dispatcher.ConfigPatch{QueueSize: intPtr(0)})
	assert.ErrorIs(t, err, dispatcher.ErrInvalidConfig)

	values, err := store.GetMany(ctx, model.SettingConcurrentQueueSize)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestConcurrencyService_StoreFailureKeepsAppliedConfig(t *testing.T) {
	svc, store := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10})
	store.FailWith(errors.New("db down"))

	cfg, err := svc.UpdateConfig(context.Background(), dispatcher.ConfigPatch{WorkerCount: intPtr(3)})
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 3, svc.Status().WorkerCount)
}

func TestConcurrencyService_SyncAppliesStoredConfig(t *testing.T) {
	svc, store := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10})
	ctx := context.Background()

	changed, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "nothing stored yet")

	require.NoError(t, store.Set(ctx, map[string]string{
		model.SettingConcurrentWorkerCount: "6",
		model.SettingConcurrentEnabled:     "false",
	}))

	changed, err = svc.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	st := svc.Status()
	assert.Equal(t, 6, st.WorkerCount)
	assert.Equal(t, 10, st.QueueSize)
	assert.False(t, st.Enabled)

	changed, err = svc.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "second sync is a no-op")
}

func TestConcurrencyService_SyncRejectsBadStoredValues(t *testing.T) {
	svc, store := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, map[string]string{model.SettingConcurrentWorkerCount: "many"}))
	_, err := svc.Sync(ctx)
	assert.Error(t, err)

	require.NoError(t, store.Set(ctx, map[string]string{model.SettingConcurrentWorkerCount: "0"}))
	_, err = svc.Sync(ctx)
	assert.ErrorIs(t, err, dispatcher.ErrInvalidConfig)

	assert.Equal(t, 2, svc.Status().WorkerCount)
}

func TestLoadStoredConfig(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	defaults := dispatcher.DefaultConfig()

	cfg, found, err := LoadStoredConfig(ctx, store, defaults)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, defaults, cfg)

	require.NoError(t, store.Set(ctx, map[string]string{model.SettingConcurrentQueueSize: "7"}))
	cfg, found, err = LoadStoredConfig(ctx, store, defaults)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, cfg.QueueSize)
	assert.Equal(t, defaults.WorkerCount, cfg.WorkerCount)
}

func TestConcurrencyService_SubmitTask(t *testing.T) {
	svc, _ := newTestService(t, dispatcher.Config{Enabled: true, WorkerCount: 1, QueueSize: 10})

	id, err := svc.SubmitTask(tasks.Spec{Type: tasks.TypeSleep, Payload: json.RawMessage(`{"duration":"1ms"}`)})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	_, err = svc.SubmitTask(tasks.Spec{Type: "nope"})
	assert.ErrorIs(t, err, tasks.ErrUnknownType)

	require.Eventually(t, func() bool { return svc.Status().ProcessedTasks == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"echo", "fail", "http", "sleep"}, svc.TaskTypes())
}
