// Package prometheus экспортирует метрики диспетчера задач в Prometheus.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"taskdispatch/internal/worker"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskdispatch"

// RecorderOptions настройки коллекторов
type RecorderOptions struct {
	DurationBuckets []float64
}

// Recorder принимает события выполнения задач от воркеров
type Recorder struct {
	taskDuration *prom.HistogramVec
	tasksTotal   *prom.CounterVec
	rejected     *prom.CounterVec
}

var _ worker.Recorder = (*Recorder)(nil)

// NewRecorder создает и регистрирует коллекторы задач
func NewRecorder(reg prom.Registerer, opts RecorderOptions) (*Recorder, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"task", "outcome"})
	totalVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_processed_total",
		Help:      "Total number of processed tasks by outcome.",
	}, []string{"task", "outcome"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_rejected_total",
		Help:      "Total number of rejected task submissions.",
	}, []string{"reason"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if totalVec, err = registerCollector(reg, totalVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}

	return &Recorder{
		taskDuration: durationVec,
		tasksTotal:   totalVec,
		rejected:     rejectedVec,
	}, nil
}

// ObserveTask фиксирует выполненную задачу
func (r *Recorder) ObserveTask(name string, duration time.Duration, outcome worker.Outcome) {
	if r == nil {
		return
	}
	task := normalizeLabel(name, "unknown")
	r.taskDuration.WithLabelValues(task, outcome.String()).Observe(duration.Seconds())
	r.tasksTotal.WithLabelValues(task, outcome.String()).Inc()
}

// ObserveRejected фиксирует отказ в приеме задачи
func (r *Recorder) ObserveRejected(reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// registerCollector регистрирует коллектор или возвращает уже зарегистрированный
func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
