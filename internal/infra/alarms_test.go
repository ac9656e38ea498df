package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func TestTickerAlarms_CreateGetClear(t *testing.T) {
	alarms := NewTickerAlarms()
	defer alarms.ClearAll()

	_, ok := alarms.Get(domain.AlarmCheckSchedule)
	assert.False(t, ok)

	require.NoError(t, alarms.Create(domain.AlarmCheckSchedule, time.Minute))
	a, ok := alarms.Get(domain.AlarmCheckSchedule)
	require.True(t, ok)
	assert.Equal(t, time.Minute, a.Period)

	err := alarms.Create(domain.AlarmCheckSchedule, time.Hour)
	assert.ErrorIs(t, err, domain.ErrAlarmExists)
	a, _ = alarms.Get(domain.AlarmCheckSchedule)
	assert.Equal(t, time.Minute, a.Period, "duplicate create keeps the original")

	assert.True(t, alarms.Clear(domain.AlarmCheckSchedule))
	assert.False(t, alarms.Clear(domain.AlarmCheckSchedule))
	_, ok = alarms.Get(domain.AlarmCheckSchedule)
	assert.False(t, ok)
}

func TestTickerAlarms_RejectsNonPositivePeriod(t *testing.T) {
	alarms := NewTickerAlarms()
	assert.Error(t, alarms.Create("x", 0))
}

func TestTickerAlarms_Fires(t *testing.T) {
	alarms := NewTickerAlarms()
	defer alarms.ClearAll()

	require.NoError(t, alarms.Create("fast", 10*time.Millisecond))

	select {
	case name := <-alarms.Fired():
		assert.Equal(t, "fast", name)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm never fired")
	}
}

func TestTickerAlarms_ClearStopsFiring(t *testing.T) {
	alarms := NewTickerAlarms()
	require.NoError(t, alarms.Create("fast", 10*time.Millisecond))
	<-alarms.Fired()
	alarms.Clear("fast")

	// Drain anything already buffered, then expect silence.
	drain := time.After(50 * time.Millisecond)
loop:
	for {
		select {
		case <-alarms.Fired():
		case <-drain:
			break loop
		}
	}

	select {
	case <-alarms.Fired():
		t.Fatal("cleared alarm fired")
	case <-time.After(50 * time.Millisecond):
	}
}
