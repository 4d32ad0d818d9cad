package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskdispatch/internal/config"
	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPPort:            "0",
		HealthPort:          "0",
		HealthCheckEnabled:  false,
		Dispatcher:          dispatcher.Config{Enabled: true, WorkerCount: 2, QueueSize: 10},
		TaskTimeout:         time.Second,
		ShutdownTimeout:     5 * time.Second,
		ConfigSyncSchedule:  "@every 1h",
		MetricsEnabled:      true,
		MetricsPollInterval: 10 * time.Millisecond,
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		HTTPClientConfig: config.HTTPClientConfig{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       time.Second,
			TLSHandshakeTimeout:   time.Second,
			ResponseHeaderTimeout: time.Second,
		},
		RetryConfig: config.RetryConfig{
			MaxRetries:        1,
			InitialDelay:      time.Millisecond,
			MaxDelay:          time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

func TestCreateDispatcher_StoredConfigWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, map[string]string{
		model.SettingConcurrentWorkerCount: "6",
		model.SettingConcurrentEnabled:     "false",
	}))

	f := NewComponentFactory(testConfig(), zap.NewNop())
	d, err := f.CreateDispatcher(ctx, store, nil)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Config{Enabled: false, WorkerCount: 6, QueueSize: 10}, d.Config())
}

func TestCreateDispatcher_InvalidStoredConfigIgnored(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, map[string]string{model.SettingConcurrentQueueSize: "0"}))

	cfg := testConfig()
	d, err := NewComponentFactory(cfg, zap.NewNop()).CreateDispatcher(ctx, store, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Dispatcher, d.Config())
}

func TestRouter_AdminTokenAndMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.AdminToken = "secret"
	f := NewComponentFactory(cfg, zap.NewNop())

	store := f.CreateStore(nil)
	registry, recorder, err := f.CreateMetrics()
	require.NoError(t, err)
	d, err := f.CreateDispatcher(ctx, store, recorder)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(stopCtx)
	})

	services := f.CreateServices(d, f.CreateTaskRegistry(), store)
	handler := NewRouter(services, f.CreateMiddleware(), promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), time.Second, zap.NewNop())

	post := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/concurrent/tasks", bytes.NewReader([]byte(`{"type":"fail"}`)))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusAccepted, post("secret"))

	require.Eventually(t, func() bool {
		return d.Status().ProcessedTasks == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), d.Status().FailedTasks)

	scrape := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec
	}
	require.Eventually(t, func() bool {
		return strings.Contains(scrape().Body.String(),
			`taskdispatch_tasks_processed_total{outcome="failed",task="fail"} 1`)
	}, 2*time.Second, 5*time.Millisecond)

	rec := scrape()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := NewAppWithFactory(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Dispatcher().IsRunning()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.Equal(t, dispatcher.StateStopped, a.Dispatcher().State())
}
