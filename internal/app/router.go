package app

import (
	"net/http"
	"time"

	"taskdispatch/internal/api"
	"taskdispatch/internal/middleware"
	"taskdispatch/internal/service"

	"go.uber.org/zap"
)

// NewRouter собирает маршруты API и оборачивает их в middleware
func NewRouter(services *service.Services, stack *middleware.Stack, metrics http.Handler, stopTimeout time.Duration, logger *zap.Logger) http.Handler {
	handler := api.NewHandler(services.Concurrency, services.Scheduler, stopTimeout, logger)
	return stack.Wrap(handler.Routes(metrics))
}
