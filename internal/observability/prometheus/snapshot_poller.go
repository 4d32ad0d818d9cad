package prometheus

import (
	"context"
	"sync"
	"time"

	"taskdispatch/internal/dispatcher"

	prom "github.com/prometheus/client_golang/prometheus"
)

// StatusProvider источник снимков статуса диспетчера
type StatusProvider interface {
	Status() dispatcher.Status
}

// SnapshotPoller периодически переносит Status() диспетчера в gauges
type SnapshotPoller struct {
	interval time.Duration
	provider StatusProvider

	queueDepth      prom.Gauge
	queueCapacity   prom.Gauge
	workers         prom.Gauge
	activeWorkers   prom.Gauge
	retiringWorkers prom.Gauge
	running         prom.Gauge
	enabled         prom.Gauge
	avgSeconds      prom.Gauge

	stateMu   sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSnapshotPoller создает поллер и регистрирует его коллекторы
func NewSnapshotPoller(reg prom.Registerer, provider StatusProvider, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) prom.Gauge {
		return prom.NewGauge(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	p := &SnapshotPoller{
		interval:        interval,
		provider:        provider,
		queueDepth:      gauge("queue_depth", "Tasks currently waiting in the queue."),
		queueCapacity:   gauge("queue_capacity", "Configured queue capacity."),
		workers:         gauge("workers", "Configured worker count."),
		activeWorkers:   gauge("active_workers", "Workers currently executing a task."),
		retiringWorkers: gauge("retiring_workers", "Removed workers still finishing their last task."),
		running:         gauge("running", "Dispatcher running state (1=running, 0=stopped or draining)."),
		enabled:         gauge("enabled", "Task admission state (1=enabled, 0=disabled)."),
		avgSeconds:      gauge("average_process_seconds", "Running average task duration in seconds."),
	}

	for _, g := range []*prom.Gauge{
		&p.queueDepth, &p.queueCapacity, &p.workers, &p.activeWorkers,
		&p.retiringWorkers, &p.running, &p.enabled, &p.avgSeconds,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}

	return p, nil
}

// Start запускает периодический опрос; повторный вызов ничего не делает
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.isRunning {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop останавливает опрос; повторный вызов безопасен
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.isRunning {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	cancel()
	<-done

	p.stateMu.Lock()
	p.isRunning = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce снимает статус и обновляет gauges
func (p *SnapshotPoller) CollectOnce() {
	st := p.provider.Status()

	p.queueDepth.Set(float64(st.CurrentQueueSize))
	p.queueCapacity.Set(float64(st.QueueSize))
	p.workers.Set(float64(st.WorkerCount))
	p.activeWorkers.Set(float64(st.ActiveWorkers))
	p.retiringWorkers.Set(float64(st.RetiringWorkers))
	p.running.Set(boolToFloat(st.State == dispatcher.StateRunning))
	p.enabled.Set(boolToFloat(st.Enabled))
	p.avgSeconds.Set(st.AverageProcessTime.Seconds())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
