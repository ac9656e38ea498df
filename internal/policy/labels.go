package policy

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

var repeatLabels = map[domain.Repeat]string{
	domain.RepeatNone:     "",
	domain.RepeatDaily:    "Repeats daily",
	domain.RepeatWeekdays: "Repeats every weekday",
	domain.RepeatWeekly:   "Repeats weekly",
	domain.RepeatMonthly:  "Repeats monthly",
	domain.RepeatYearly:   "Repeats yearly",
}

// RepeatLabel returns the display label for r ("" for none).
func RepeatLabel(r domain.Repeat) string {
	return repeatLabels[r]
}

// DescribeWindow renders a schedule's time window for listings.
func DescribeWindow(s domain.Schedule) string {
	if s.AllDay {
		if s.StartDate == s.EndDate {
			return s.StartDate + " · All day"
		}
		return fmt.Sprintf("%s - %s · All day", s.StartDate, s.EndDate)
	}
	if s.StartDate == s.EndDate {
		return fmt.Sprintf("%s · %s - %s", s.StartDate, s.StartTime, s.EndTime)
	}
	return fmt.Sprintf("%s, %s - %s, %s", s.StartDate, s.StartTime, s.EndDate, s.EndTime)
}

// DescribeStart renders how far away an upcoming schedule's start is,
// relative to now ("Starts in 5 minutes", "Starts tomorrow at 09:00").
func DescribeStart(s domain.Schedule, now time.Time) string {
	now = now.In(time.Local)
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.StartDate+" "+startClock(s), time.Local)
	if err != nil {
		return ""
	}

	clock := s.StartTime
	if s.AllDay {
		clock = "all day"
	}

	diff := start.Sub(now)
	minutes := int(diff / time.Minute)
	hours := int(diff / time.Hour)

	switch {
	case minutes > 0 && minutes < 60:
		return "Starts in " + plural(minutes, "minute")
	case hours > 0 && hours < 24:
		return "Starts in " + plural(hours, "hour")
	}

	if s.StartDate == now.AddDate(0, 0, 1).Format(DateLayout) {
		return "Starts tomorrow at " + clock
	}
	if diff > 0 && diff <= 7*24*time.Hour {
		return fmt.Sprintf("Starts on %s at %s", start.Weekday(), clock)
	}
	return fmt.Sprintf("Starts on %s at %s", start.Format("Mon, 2 Jan"), clock)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
