// Package policy decides what is blocked and when.
// Everything here is pure: schedules and the evaluation instant go in,
// decisions and rules come out.
package policy

import "time"

// Date and time layouts used by stored schedules.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// All-day schedules are stored with these bounds.
const (
	AllDayStart = "00:00"
	AllDayEnd   = "23:59"
)

// LocalNow splits t into a local date (YYYY-MM-DD) and clock time (HH:MM).
func LocalNow(t time.Time) (date, clock string) {
	local := t.In(time.Local)
	return local.Format(DateLayout), local.Format(TimeLayout)
}
