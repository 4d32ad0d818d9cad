package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskdispatch/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func newRunning(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d, err := New(cfg, Options{TaskTimeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func noop() worker.Task {
	return worker.NewTask("noop", func(context.Context) error { return nil })
}

// blocker возвращает задачу, которая сигнализирует о старте и ждет release
func blocker(started chan<- struct{}, release <-chan struct{}) worker.Task {
	return worker.NewTask("blocker", func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	})
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(Config{WorkerCount: 0, QueueSize: 1}, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{WorkerCount: 1, QueueSize: 0}, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDispatcher_StatusBeforeStart(t *testing.T) {
	d, err := New(DefaultConfig(), Options{}, zap.NewNop())
	require.NoError(t, err)

	st := d.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Equal(t, 0, st.ActiveWorkers)
	assert.Equal(t, 0, st.CurrentQueueSize)
	assert.Equal(t, int64(0), st.ProcessedTasks)
	assert.Equal(t, 4, st.WorkerCount)
	assert.Equal(t, 100, st.QueueSize)
	assert.True(t, st.Enabled)
	assert.Empty(t, st.Workers)

	err = d.Submit(noop())
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = d.Reconfigure(ConfigPatch{WorkerCount: intPtr(2)})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 4, d.Config().WorkerCount)
}

func TestDispatcher_ConcurrentSubmissionsAllProcessed(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const total = 1000
			d := newRunning(t, Config{Enabled: true, WorkerCount: workers, QueueSize: total})

			var executed atomic.Int64
			var maxActive atomic.Int64
			observe := func() {
				a := int64(d.Status().ActiveWorkers)
				for {
					cur := maxActive.Load()
					if a <= cur || maxActive.CompareAndSwap(cur, a) {
						return
					}
				}
			}

			var wg sync.WaitGroup
			for i := 0; i < total; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					task := worker.NewTask("work", func(context.Context) error {
						executed.Add(1)
						if i%10 == 0 {
							return errors.New("every tenth task fails")
						}
						return nil
					})
					assert.NoError(t, d.Submit(task))
					observe()
				}(i)
			}
			wg.Wait()

			stop(t, d)

			st := d.Status()
			assert.Equal(t, int64(total), st.ProcessedTasks)
			assert.Equal(t, int64(total/10), st.FailedTasks)
			assert.Equal(t, int64(total), executed.Load())
			assert.Equal(t, 0, st.ActiveWorkers)
			assert.Equal(t, 0, st.CurrentQueueSize)
			assert.LessOrEqual(t, maxActive.Load(), int64(workers))
			assert.Equal(t, StateStopped, st.State)
		})
	}
}

func TestDispatcher_SubmitRejectsWhenFullWithoutBlocking(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 1, QueueSize: 2})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, d.Submit(blocker(started, release)))
	<-started

	require.NoError(t, d.Submit(noop()))
	require.NoError(t, d.Submit(noop()))
	assert.Equal(t, 2, d.Status().CurrentQueueSize)

	begin := time.Now()
	err := d.Submit(noop())
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), d.Status().RejectedTasks)
}

func TestDispatcher_DisableIsAdmissionValveOnly(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 1, QueueSize: 10})

	started := make(chan struct{}, 1)
	release := make(chan struct{})

	require.NoError(t, d.Submit(blocker(started, release)))
	<-started
	require.NoError(t, d.Submit(noop()))

	cfg, err := d.Reconfigure(ConfigPatch{Enabled: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	err = d.Submit(noop())
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NotErrorIs(t, err, ErrQueueFull)

	close(release)
	stop(t, d)

	st := d.Status()
	assert.Equal(t, int64(2), st.ProcessedTasks, "queued and in-flight tasks still complete")
	assert.Equal(t, int64(1), st.RejectedTasks)
	assert.False(t, st.Enabled)
}

func TestDispatcher_ReconfigureMergesPartialPatch(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 2, QueueSize: 5})

	cfg, err := d.Reconfigure(ConfigPatch{WorkerCount: intPtr(6)})
	require.NoError(t, err)
	assert.Equal(t, Config{Enabled: true, WorkerCount: 6, QueueSize: 5}, cfg)

	cfg, err = d.Reconfigure(ConfigPatch{QueueSize: intPtr(50)})
	require.NoError(t, err)
	assert.Equal(t, Config{Enabled: true, WorkerCount: 6, QueueSize: 50}, cfg)

	st := d.Status()
	assert.Equal(t, 6, st.WorkerCount)
	assert.Equal(t, 50, st.QueueSize)
	assert.Len(t, st.Workers, 6)

	cfg, err = d.Reconfigure(ConfigPatch{})
	require.NoError(t, err)
	assert.Equal(t, d.Config(), cfg)
}

func TestDispatcher_ReconfigureRejectsInvalidConfig(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 2, QueueSize: 5})

	for _, patch := range []ConfigPatch{
		{WorkerCount: intPtr(0)},
		{QueueSize: intPtr(0)},
		{WorkerCount: intPtr(-3), QueueSize: intPtr(10)},
	} {
		cfg, err := d.Reconfigure(patch)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Equal(t, Config{Enabled: true, WorkerCount: 2, QueueSize: 5}, cfg)
	}
	assert.Equal(t, Config{Enabled: true, WorkerCount: 2, QueueSize: 5}, d.Config())
}

func TestDispatcher_ReconfigureQueueBelowDepthFails(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 1, QueueSize: 5})

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, d.Submit(blocker(started, release)))
	<-started
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Submit(noop()))
	}

	// одновременно запрошено и изменение числа воркеров: оно не должно примениться
	_, err := d.Reconfigure(ConfigPatch{QueueSize: intPtr(2), WorkerCount: intPtr(3)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, Config{Enabled: true, WorkerCount: 1, QueueSize: 5}, d.Config())
	assert.Len(t, d.Status().Workers, 1)

	// ровно по глубине очереди допустимо
	cfg, err := d.Reconfigure(ConfigPatch{QueueSize: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.QueueSize)

	close(release)
	stop(t, d)
	assert.Equal(t, int64(4), d.Status().ProcessedTasks)
}

func TestDispatcher_ShrinkKeepsInFlightTasks(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 3, QueueSize: 10})

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Submit(blocker(started, release)))
	}
	for i := 0; i < 3; i++ {
		<-started
	}

	_, err := d.Reconfigure(ConfigPatch{WorkerCount: intPtr(1)})
	require.NoError(t, err)

	st := d.Status()
	assert.Equal(t, 1, st.WorkerCount)
	assert.LessOrEqual(t, st.ActiveWorkers, st.WorkerCount)
	assert.Equal(t, 2, st.RetiringWorkers)

	close(release)
	stop(t, d)

	st = d.Status()
	assert.Equal(t, int64(3), st.ProcessedTasks)
	assert.Equal(t, int64(0), st.FailedTasks)
	assert.Equal(t, 0, st.RetiringWorkers)
}

func TestDispatcher_ActiveWorkersBoundedDuringResize(t *testing.T) {
	const total = 32
	d := newRunning(t, Config{Enabled: true, WorkerCount: 1, QueueSize: 64})

	started := make(chan struct{}, total)
	release := make(chan struct{})
	for i := 0; i < total; i++ {
		require.NoError(t, d.Submit(blocker(started, release)))
	}
	<-started

	var samples, violations atomic.Int64
	done := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-done:
				return
			default:
			}
			st := d.Status()
			samples.Add(1)
			if st.ActiveWorkers > st.WorkerCount {
				violations.Add(1)
			}
		}
	}()

	_, err := d.Reconfigure(ConfigPatch{WorkerCount: intPtr(16)})
	require.NoError(t, err)
	for i := 1; i < 16; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("new workers did not pick up queued tasks")
		}
	}

	_, err = d.Reconfigure(ConfigPatch{WorkerCount: intPtr(2)})
	require.NoError(t, err)
	_, err = d.Reconfigure(ConfigPatch{WorkerCount: intPtr(8)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return d.Status().ActiveWorkers == 8
	}, 5*time.Second, 5*time.Millisecond)

	close(done)
	<-polled
	close(release)
	stop(t, d)

	assert.Positive(t, samples.Load())
	assert.Zero(t, violations.Load(), "status reported more active workers than configured")
	assert.Equal(t, int64(total), d.Status().ProcessedTasks)
}

func TestDispatcher_StopThenStartResumes(t *testing.T) {
	d := newRunning(t, Config{Enabled: true, WorkerCount: 2, QueueSize: 4})

	require.NoError(t, d.Submit(noop()))
	stop(t, d)
	assert.Equal(t, StateStopped, d.State())
	assert.ErrorIs(t, d.Submit(noop()), ErrNotRunning)

	require.NoError(t, d.Start())
	assert.ErrorIs(t, d.Start(), ErrAlreadyRunning)
	assert.Equal(t, StateRunning, d.State())

	done := make(chan struct{})
	require.NoError(t, d.Submit(worker.NewTask("resumed", func(context.Context) error {
		close(done)
		return nil
	})))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task submitted after restart was not executed")
	}

	stop(t, d)
	assert.Equal(t, int64(2), d.Status().ProcessedTasks, "metrics live as long as the dispatcher")
}

func TestDispatcher_StopTimeoutLeavesDraining(t *testing.T) {
	d, err := New(Config{Enabled: true, WorkerCount: 1, QueueSize: 4}, Options{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start())

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, d.Submit(blocker(started, release)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDraining, d.State())

	assert.ErrorIs(t, d.Start(), ErrDraining)
	assert.ErrorIs(t, d.Submit(noop()), ErrNotRunning)
	_, err = d.Reconfigure(ConfigPatch{WorkerCount: intPtr(2)})
	assert.ErrorIs(t, err, ErrNotRunning)

	close(release)
	require.Eventually(t, func() bool { return d.State() == StateStopped }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Start())
	stop(t, d)
}

func TestDispatcher_SubmitNilHandler(t *testing.T) {
	d := newRunning(t, DefaultConfig())
	err := d.Submit(worker.Task{Name: "empty"})
	assert.ErrorIs(t, err, worker.ErrNilHandler)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, int64(0), d.Status().RejectedTasks)
}

type rejectRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *rejectRecorder) ObserveTask(string, time.Duration, worker.Outcome) {}

func (r *rejectRecorder) ObserveRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func TestDispatcher_RecorderSeesRejectReasons(t *testing.T) {
	rec := &rejectRecorder{}
	d, err := New(Config{Enabled: false, WorkerCount: 1, QueueSize: 1}, Options{Recorder: rec}, zap.NewNop())
	require.NoError(t, err)

	_ = d.Submit(noop())
	require.NoError(t, d.Start())
	_ = d.Submit(noop())
	stop(t, d)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{ReasonNotRunning, ReasonDisabled}, rec.reasons)
}
