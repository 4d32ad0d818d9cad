// Package middleware содержит HTTP middleware административного API.
package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Middleware обертка над http.Handler
type Middleware func(http.Handler) http.Handler

// Chain оборачивает h в middleware; первый в списке выполняется первым
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Options настройки стека middleware
type Options struct {
	// AdminToken пустой токен отключает проверку
	AdminToken string
	// RateLimit максимальное число изменяющих запросов с одного адреса за RateWindow; 0 отключает лимит
	RateLimit  int
	RateWindow time.Duration
}

// Stack представляет набор middleware API
type Stack struct {
	rateLimiter RateLimiterInterface
	logger      *zap.Logger
	options     Options
}

// New создает стек middleware
func New(options Options, logger *zap.Logger) *Stack {
	var limiter RateLimiterInterface
	if options.RateLimit > 0 && options.RateWindow > 0 {
		limiter = NewRateLimiter(options.RateLimit, options.RateWindow, logger)
	}

	return &Stack{
		rateLimiter: limiter,
		logger:      logger,
		options:     options,
	}
}

// Wrap применяет recovery, логирование, rate limiting и проверку токена
func (s *Stack) Wrap(h http.Handler) http.Handler {
	mws := []Middleware{
		Recovery(s.logger),
		Logging(s.logger),
	}
	if s.rateLimiter != nil {
		mws = append(mws, RateLimit(s.rateLimiter, s.logger))
	}
	mws = append(mws, AdminToken(s.options.AdminToken, s.logger))
	return Chain(h, mws...)
}

// Cleanup очищает устаревшие записи rate limiter
func (s *Stack) Cleanup() {
	if s.rateLimiter != nil {
		s.rateLimiter.Cleanup()
	}
}

// isMutating сообщает, меняет ли запрос состояние сервиса
func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// writeError пишет ответ в формате {success:false, message}
func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
