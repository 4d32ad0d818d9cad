// Package health содержит health check сервер.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Server представляет health check сервер
type Server struct {
	server    *http.Server
	readiness ReadinessChecker
	store     Pinger
	logger    *zap.Logger
}

// NewServer создает новый health check сервер
func NewServer(port string, logger *zap.Logger, readiness ReadinessChecker, store Pinger) *Server {
	mux := http.NewServeMux()

	healthServer := &Server{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		readiness: readiness,
		store:     store,
		logger:    logger,
	}

	// Регистрируем маршруты
	mux.HandleFunc("GET /health", healthServer.healthHandler)
	mux.HandleFunc("GET /ready", healthServer.readyHandler)
	mux.HandleFunc("GET /live", healthServer.liveHandler)

	return healthServer
}

// Handler возвращает обработчик маршрутов
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start запускает health check сервер и блокируется до его остановки
func (s *Server) Start() error {
	s.logger.Info("Starting health check server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает health check сервер
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health check server")
	return s.server.Shutdown(ctx)
}

// healthHandler обрабатывает запросы /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	checks := map[string]string{}

	if err := s.checkStore(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		checks["store"] = err.Error()
		s.logger.Error("Health check failed", zap.Error(err))
	} else {
		checks["store"] = "ok"
	}

	if s.readiness.IsRunning() {
		checks["dispatcher"] = "running"
	} else {
		checks["dispatcher"] = "not running"
	}

	writeStatus(w, code, status, checks)
}

// readyHandler обрабатывает запросы /ready
func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if !s.readiness.IsRunning() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	writeStatus(w, http.StatusOK, "ready", nil)
}

// liveHandler обрабатывает запросы /live
func (s *Server) liveHandler(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "alive", nil)
}

// checkStore проверяет хранилище настроек
func (s *Server) checkStore(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("settings store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("settings store ping failed: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
