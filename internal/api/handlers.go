// Package api содержит HTTP API управления диспетчером задач.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/model"
	"taskdispatch/internal/service"
	"taskdispatch/internal/tasks"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ConcurrencyService операции диспетчера, доступные API
type ConcurrencyService interface {
	Status() dispatcher.Status
	UpdateConfig(ctx context.Context, patch dispatcher.ConfigPatch) (dispatcher.Config, error)
	SubmitTask(spec tasks.Spec) (uuid.UUID, error)
	Start() error
	Stop(ctx context.Context) error
	TaskTypes() []string
}

// ScheduleService операции планировщика, доступные API
type ScheduleService interface {
	GetStatus() []model.ScheduleInfo
	Trigger(name string) (uuid.UUID, error)
}

// Handler обработчики API
type Handler struct {
	service     ConcurrencyService
	schedules   ScheduleService
	stopTimeout time.Duration
	logger      *zap.Logger
}

// NewHandler создает обработчики API. schedules может быть nil.
func NewHandler(svc ConcurrencyService, schedules ScheduleService, stopTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		service:     svc,
		schedules:   schedules,
		stopTimeout: stopTimeout,
		logger:      logger,
	}
}

// Routes регистрирует маршруты; metrics может быть nil
func (h *Handler) Routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/concurrent/status", h.getStatus)
	mux.HandleFunc("PUT /api/concurrent/config", h.updateConfig)
	mux.HandleFunc("POST /api/concurrent/tasks", h.submitTask)
	mux.HandleFunc("GET /api/concurrent/tasks/types", h.taskTypes)
	mux.HandleFunc("POST /api/concurrent/start", h.start)
	mux.HandleFunc("POST /api/concurrent/stop", h.stop)

	if h.schedules != nil {
		mux.HandleFunc("GET /api/concurrent/schedules", h.listSchedules)
		mux.HandleFunc("POST /api/concurrent/schedules/{name}/trigger", h.triggerSchedule)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return mux
}

// getStatus GET /api/concurrent/status
func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, h.logger, http.StatusOK, "", newStatusResponse(h.service.Status()))
}

// updateConfig PUT /api/concurrent/config
func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch dispatcher.ConfigPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	cfg, err := h.service.UpdateConfig(r.Context(), patch)
	switch {
	case err == nil:
		writeOK(w, h.logger, http.StatusOK, "config updated", cfg)
	case errors.Is(err, service.ErrNotPersisted):
		writeOK(w, h.logger, http.StatusOK, "config applied but not saved: "+err.Error(), cfg)
	case errors.Is(err, dispatcher.ErrNotRunning):
		writeError(w, h.logger, http.StatusConflict, err)
	default:
		writeError(w, h.logger, statusCode(err), err)
	}
}

// submitTask POST /api/concurrent/tasks
func (h *Handler) submitTask(w http.ResponseWriter, r *http.Request) {
	var spec tasks.Spec
	if err := decodeBody(w, r, &spec); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if spec.Type == "" {
		writeError(w, h.logger, http.StatusBadRequest, errors.New("task type is required"))
		return
	}

	id, err := h.service.SubmitTask(spec)
	if err != nil {
		code := statusCode(err)
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, h.logger, code, err)
		return
	}

	writeOK(w, h.logger, http.StatusAccepted, "task accepted", SubmitResponse{ID: id.String()})
}

// taskTypes GET /api/concurrent/tasks/types
func (h *Handler) taskTypes(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, h.logger, http.StatusOK, "", h.service.TaskTypes())
}

// start POST /api/concurrent/start
func (h *Handler) start(w http.ResponseWriter, _ *http.Request) {
	if err := h.service.Start(); err != nil {
		writeError(w, h.logger, statusCode(err), err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "dispatcher started", newStatusResponse(h.service.Status()))
}

// stop POST /api/concurrent/stop. Дренаж не зависит от соединения клиента.
func (h *Handler) stop(w http.ResponseWriter, _ *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), h.stopTimeout)
	defer cancel()

	if err := h.service.Stop(ctx); err != nil {
		code := statusCode(err)
		if code == http.StatusGatewayTimeout {
			writeJSON(w, h.logger, code, Response{
				Success: false,
				Message: "stop timed out, dispatcher keeps draining",
				Data:    newStatusResponse(h.service.Status()),
			})
			return
		}
		writeError(w, h.logger, code, err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, "dispatcher stopped", newStatusResponse(h.service.Status()))
}

// listSchedules GET /api/concurrent/schedules
func (h *Handler) listSchedules(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, h.logger, http.StatusOK, "", h.schedules.GetStatus())
}

// triggerSchedule POST /api/concurrent/schedules/{name}/trigger
func (h *Handler) triggerSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := h.schedules.Trigger(r.PathValue("name"))
	if err != nil {
		writeError(w, h.logger, statusCode(err), err)
		return
	}
	writeOK(w, h.logger, http.StatusAccepted, "task accepted", SubmitResponse{ID: id.String()})
}

// decodeBody читает JSON-тело; неизвестные поля считаются ошибкой
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
