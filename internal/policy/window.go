package policy

import "github.com/eliteGoblin/focusd/web_mon/internal/domain"

// Dates and times are fixed-width strings, so lexicographic order is
// chronological order.

// IsActive reports whether s blocks at local date d and time t.
// Both ends of the window are inclusive.
func IsActive(s domain.Schedule, d, t string) bool {
	if d < s.StartDate || d > s.EndDate {
		return false
	}
	if s.AllDay {
		return true
	}
	return t >= s.StartTime && t <= s.EndTime
}

// IsCompleted reports whether a non-repeating schedule has fully elapsed.
// Repeating schedules are never completed.
func IsCompleted(s domain.Schedule, d, t string) bool {
	if s.Repeat != domain.RepeatNone && s.Repeat != "" {
		return false
	}
	if d > s.EndDate {
		return true
	}
	if s.AllDay {
		return false
	}
	return d == s.EndDate && t > s.EndTime
}

// IsUpcoming reports whether s starts strictly after (d, t).
func IsUpcoming(s domain.Schedule, d, t string) bool {
	if s.StartDate > d {
		return true
	}
	return s.StartDate == d && startClock(s) > t
}

// NextStart returns when s next starts, if that is after (d, t).
// Recurrence is not projected forward: only the stored window counts.
func NextStart(s domain.Schedule, d, t string) (date, clock string, ok bool) {
	if !IsUpcoming(s, d, t) {
		return "", "", false
	}
	return s.StartDate, startClock(s), true
}

func startClock(s domain.Schedule) string {
	if s.AllDay {
		return AllDayStart
	}
	return s.StartTime
}
