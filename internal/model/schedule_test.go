package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Validate(t *testing.T) {
	valid := Schedule{Name: "heartbeat", Spec: "@every 1m", Type: "echo"}
	assert.NoError(t, valid.Validate())

	cron := Schedule{Name: "nightly", Spec: "0 3 * * *", Type: "sleep"}
	assert.NoError(t, cron.Validate())

	err := Schedule{Spec: "not a cron"}.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "type", "spec"}, fields)
}

func TestScheduleStats_UpdateRunStats(t *testing.T) {
	stats := NewScheduleStats(Schedule{Name: "heartbeat", Spec: "@every 1m", Type: "echo"})

	stats.UpdateRunStats(true, nil)
	stats.UpdateRunStats(false, errors.New("queue full"))

	next := time.Now().Add(time.Minute)
	info := stats.Snapshot(next)
	assert.Equal(t, "heartbeat", info.Name)
	assert.Equal(t, 2, info.RunCount)
	assert.Equal(t, 1, info.AcceptedCount)
	assert.Equal(t, 1, info.RejectedCount)
	assert.Equal(t, "queue full", info.LastError)
	require.NotNil(t, info.LastRun)
	require.NotNil(t, info.NextRun)
	assert.Equal(t, next, *info.NextRun)

	stats.UpdateRunStats(true, nil)
	info = stats.Snapshot(time.Time{})
	assert.Empty(t, info.LastError)
	assert.Nil(t, info.NextRun)
}
