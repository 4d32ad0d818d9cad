package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskdispatch/internal/worker"

	"go.uber.org/zap"
)

// Встроенные типы задач
const (
	TypeSleep = "sleep"
	TypeEcho  = "echo"
	TypeFail  = "fail"
	TypeHTTP  = "http"
)

// RegisterBuiltins регистрирует sleep, echo, fail и http
func RegisterBuiltins(r *Registry, client *http.Client, retry RetryConfig) {
	r.Register(TypeSleep, sleepFactory)
	r.Register(TypeEcho, echoFactory(r.logger))
	r.Register(TypeFail, failFactory)
	r.Register(TypeHTTP, httpFactory(client, retry, r.logger))
}

type sleepPayload struct {
	Duration string `json:"duration"`
}

func sleepFactory(payload json.RawMessage) (worker.Handler, error) {
	p := sleepPayload{Duration: "100ms"}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return nil, fmt.Errorf("bad duration: %w", err)
	}
	if d < 0 {
		return nil, errors.New("duration must not be negative")
	}

	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

func echoFactory(logger *zap.Logger) Factory {
	return func(payload json.RawMessage) (worker.Handler, error) {
		if len(payload) > 0 && !json.Valid(payload) {
			return nil, errors.New("payload is not valid JSON")
		}
		body := string(payload)
		return func(context.Context) error {
			logger.Info("Echo task", zap.String("payload", body))
			return nil
		}, nil
	}
}

type failPayload struct {
	Message string `json:"message"`
}

func failFactory(payload json.RawMessage) (worker.Handler, error) {
	p := failPayload{Message: "task failed on purpose"}
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		return errors.New(p.Message)
	}, nil
}
