package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func TestRepeatLabel(t *testing.T) {
	assert.Equal(t, "", RepeatLabel(domain.RepeatNone))
	assert.Equal(t, "Repeats every weekday", RepeatLabel(domain.RepeatWeekdays))
}

func TestDescribeStart(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.Local) // a Sunday
	s := timedSchedule()

	s.StartDate, s.StartTime = "2024-03-10", "08:05"
	assert.Equal(t, "Starts in 5 minutes", DescribeStart(s, now))

	s.StartTime = "09:00"
	assert.Equal(t, "Starts in 1 hour", DescribeStart(s, now))

	s.StartDate = "2024-03-11"
	assert.Equal(t, "Starts tomorrow at 09:00", DescribeStart(s, now))

	s.StartDate = "2024-03-14"
	assert.Equal(t, "Starts on Thursday at 09:00", DescribeStart(s, now))

	all := allDaySchedule()
	all.StartDate = "2024-04-02"
	assert.Equal(t, "Starts on Tue, 2 Apr at all day", DescribeStart(all, now))
}

func TestDescribeWindow(t *testing.T) {
	assert.Equal(t, "2024-03-10 · All day", DescribeWindow(allDaySchedule()))
	assert.Equal(t, "2024-03-10, 09:00 - 2024-03-12, 17:30", DescribeWindow(timedSchedule()))
}
