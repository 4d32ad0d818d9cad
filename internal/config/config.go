// Package config содержит загрузку и валидацию конфигурации.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/pkg/logger"

	"github.com/joho/godotenv"
)

// Config представляет конфигурацию приложения
type Config struct {
	// HTTP API
	HTTPPort          string
	AdminToken        string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Health
	HealthPort         string
	HealthCheckEnabled bool

	// Database; пустой DSN означает хранилище настроек в памяти
	DatabaseURL  string
	DBMaxRetries int
	DBRetryDelay time.Duration

	// Dispatcher
	Dispatcher         dispatcher.Config
	TaskTimeout        time.Duration
	ShutdownTimeout    time.Duration
	ConfigSyncSchedule string

	// Metrics
	MetricsEnabled      bool
	MetricsPollInterval time.Duration

	// Logging
	Log logger.Config

	// HTTP-задачи
	HTTPClientConfig HTTPClientConfig
	RetryConfig      RetryConfig

	// Расписания из YAML-файла
	Schedules []model.Schedule

	// ConfigFile путь к YAML-файлу, если он был загружен
	ConfigFile string
}

// HTTPClientConfig представляет конфигурацию HTTP клиента
type HTTPClientConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// RetryConfig представляет конфигурацию retry механизма
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Load загружает конфигурацию: .env, затем YAML-файл из CONFIG_FILE, затем переменные окружения.
// Переменные окружения имеют приоритет над файлом.
func Load() (*Config, error) {
	// Загружаем .env файл если он существует
	_ = godotenv.Load()

	defaults := dispatcher.DefaultConfig()
	taskTimeout := 30 * time.Second

	var file *fileConfig
	configFile := getEnv("CONFIG_FILE", "")
	if configFile != "" {
		var err error
		file, err = loadFile(configFile)
		if err != nil {
			return nil, err
		}
		defaults = defaults.Apply(file.Dispatcher.ConfigPatch)
		if file.Dispatcher.TaskTimeout != "" {
			d, err := time.ParseDuration(file.Dispatcher.TaskTimeout)
			if err != nil {
				return nil, fmt.Errorf("bad dispatcher.taskTimeout in %s: %w", configFile, err)
			}
			taskTimeout = d
		}
	}

	config := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8090"),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		HealthPort:         getEnv("HEALTH_PORT", "8080"),
		HealthCheckEnabled: getEnvBool("HEALTH_CHECK_ENABLED", true),
		DatabaseURL:        getEnv("DB_DSN", ""),
		DBMaxRetries:       getEnvInt("DB_MAX_RETRIES", 10),
		DBRetryDelay:       getEnvDuration("DB_RETRY_DELAY", 5*time.Second),
		Dispatcher: dispatcher.Config{
			Enabled:     getEnvBool("CONCURRENT_ENABLED", defaults.Enabled),
			WorkerCount: getEnvInt("CONCURRENT_WORKER_COUNT", defaults.WorkerCount),
			QueueSize:   getEnvInt("CONCURRENT_QUEUE_SIZE", defaults.QueueSize),
		},
		TaskTimeout:         getEnvDuration("TASK_TIMEOUT", taskTimeout),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		ConfigSyncSchedule:  getEnv("CONFIG_SYNC_SCHEDULE", "@every 30s"),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		MetricsPollInterval: getEnvDuration("METRICS_POLL_INTERVAL", 5*time.Second),
		Log: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/taskdispatch.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		},
		HTTPClientConfig: HTTPClientConfig{
			MaxIdleConns:          getEnvInt("HTTP_MAX_IDLE_CONNS", 50),
			MaxIdleConnsPerHost:   getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 10),
			IdleConnTimeout:       getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second),
			TLSHandshakeTimeout:   getEnvDuration("HTTP_TLS_HANDSHAKE_TIMEOUT", 10*time.Second),
			ResponseHeaderTimeout: getEnvDuration("HTTP_RESPONSE_HEADER_TIMEOUT", 15*time.Second),
		},
		RetryConfig: RetryConfig{
			MaxRetries:        getEnvInt("RETRY_MAX_RETRIES", 2),
			InitialDelay:      getEnvDuration("RETRY_INITIAL_DELAY", 200*time.Millisecond),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 2*time.Second),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		},
		ConfigFile: configFile,
	}
	if file != nil {
		config.Schedules = file.Schedules
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if err := c.Dispatcher.Validate(); err != nil {
		return err
	}

	for name, port := range map[string]string{"HTTP_PORT": c.HTTPPort, "HEALTH_PORT": c.HealthPort} {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("%s must be a valid port, got %q", name, port)
		}
	}
	if c.HealthCheckEnabled && c.HTTPPort == c.HealthPort {
		return fmt.Errorf("HTTP_PORT and HEALTH_PORT must differ")
	}

	if c.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}

	if c.TaskTimeout < 0 {
		return fmt.Errorf("TASK_TIMEOUT must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ConfigSyncSchedule == "" {
		return fmt.Errorf("CONFIG_SYNC_SCHEDULE is required")
	}
	if c.MetricsEnabled && c.MetricsPollInterval <= 0 {
		return fmt.Errorf("METRICS_POLL_INTERVAL must be positive")
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for _, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("schedule %q: %w", s.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("schedule %q is defined twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return nil
}

// getEnv получает переменную окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как time.Duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvBool получает переменную окружения как bool
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения как float64
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
