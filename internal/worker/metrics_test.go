package worker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_IncrementalAverage(t *testing.T) {
	s := NewStats()

	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		s.recordCompletionLocked(d, OutcomeSucceeded)
	}

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.ProcessedTasks)
	assert.Equal(t, 20*time.Millisecond, snap.AverageProcessTime)
	assert.False(t, snap.LastCompletedAt.IsZero())
}

func TestStats_AverageMatchesArithmeticMean(t *testing.T) {
	s := NewStats()

	var sum float64
	const n = 1000
	for i := 1; i <= n; i++ {
		d := time.Duration(i*7919%1000) * time.Microsecond
		sum += float64(d)
		s.recordCompletionLocked(d, OutcomeSucceeded)
	}

	mean := sum / n
	got := float64(s.Snapshot().AverageProcessTime)
	assert.LessOrEqual(t, math.Abs(got-mean), 1.0, "incremental average drifted from arithmetic mean")
}

func TestStats_FailuresCountAsProcessed(t *testing.T) {
	s := NewStats()
	s.recordCompletionLocked(time.Millisecond, OutcomeSucceeded)
	s.recordCompletionLocked(time.Millisecond, OutcomeFailed)
	s.RecordRejected()

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.ProcessedTasks)
	assert.Equal(t, int64(1), snap.FailedTasks)
	assert.Equal(t, int64(1), snap.RejectedTasks)
}

func TestStats_RetireMovesBusyWorker(t *testing.T) {
	s := NewStats()
	w := newWorker(1, nil)

	s.markBusy(w)
	assert.Equal(t, 1, s.Snapshot().ActiveWorkers)

	s.retire(w)
	s.retire(w)
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.ActiveWorkers)
	assert.Equal(t, 1, snap.RetiringWorkers)

	s.markDone(w, time.Millisecond, OutcomeSucceeded)
	snap = s.Snapshot()
	assert.Equal(t, 0, snap.ActiveWorkers)
	assert.Equal(t, 0, snap.RetiringWorkers)
	assert.Equal(t, int64(1), snap.ProcessedTasks)
	assert.Equal(t, StateIdle, State(w.state.Load()))
}
