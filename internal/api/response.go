package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"taskdispatch/internal/dispatcher"
	"taskdispatch/internal/service"
	"taskdispatch/internal/tasks"
	"taskdispatch/internal/worker"

	"go.uber.org/zap"
)

// Response общий формат ответа API
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// StatusResponse статус диспетчера в формате API
type StatusResponse struct {
	State                string              `json:"state"`
	Enabled              bool                `json:"enabled"`
	WorkerCount          int                 `json:"workerCount"`
	QueueSize            int                 `json:"queueSize"`
	CurrentQueueSize     int                 `json:"currentQueueSize"`
	ProcessedTasks       int64               `json:"processedTasks"`
	FailedTasks          int64               `json:"failedTasks"`
	RejectedTasks        int64               `json:"rejectedTasks"`
	ActiveWorkers        int                 `json:"activeWorkers"`
	RetiringWorkers      int                 `json:"retiringWorkers"`
	AverageProcessTime   string              `json:"averageProcessTime"`
	AverageProcessTimeMs float64             `json:"averageProcessTimeMs"`
	LastCompletedAt      *time.Time          `json:"lastCompletedAt,omitempty"`
	Workers              []worker.WorkerInfo `json:"workers"`
}

// SubmitResponse ответ на постановку задачи
type SubmitResponse struct {
	ID string `json:"id"`
}

func newStatusResponse(s dispatcher.Status) StatusResponse {
	resp := StatusResponse{
		State:                s.State.String(),
		Enabled:              s.Enabled,
		WorkerCount:          s.WorkerCount,
		QueueSize:            s.QueueSize,
		CurrentQueueSize:     s.CurrentQueueSize,
		ProcessedTasks:       s.ProcessedTasks,
		FailedTasks:          s.FailedTasks,
		RejectedTasks:        s.RejectedTasks,
		ActiveWorkers:        s.ActiveWorkers,
		RetiringWorkers:      s.RetiringWorkers,
		AverageProcessTime:   s.AverageProcessTime.Round(time.Microsecond).String(),
		AverageProcessTimeMs: float64(s.AverageProcessTime) / float64(time.Millisecond),
		Workers:              s.Workers,
	}
	if !s.LastCompletedAt.IsZero() {
		t := s.LastCompletedAt
		resp.LastCompletedAt = &t
	}
	if resp.Workers == nil {
		resp.Workers = []worker.WorkerInfo{}
	}
	return resp
}

// statusCode сопоставляет ошибку сервиса с HTTP-кодом
func statusCode(err error) int {
	switch {
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, dispatcher.ErrDisabled), errors.Is(err, dispatcher.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatcher.ErrAlreadyRunning), errors.Is(err, dispatcher.ErrDraining):
		return http.StatusConflict
	case errors.Is(err, dispatcher.ErrInvalidConfig),
		errors.Is(err, tasks.ErrUnknownType),
		errors.Is(err, tasks.ErrInvalidPayload),
		errors.Is(err, worker.ErrNilHandler):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("Failed to write response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, code int, message string, data any) {
	writeJSON(w, logger, code, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, logger *zap.Logger, code int, err error) {
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable && code != http.StatusGatewayTimeout {
		logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, logger, code, Response{Success: false, Message: err.Error()})
}
