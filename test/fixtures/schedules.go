// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// Date returns the local date offset by days from today.
func Date(days int) string {
	return time.Now().AddDate(0, 0, days).Format(policy.DateLayout)
}

// AllDay returns a draft blocking website for whole days from start to end.
func AllDay(website, start, end string) domain.ScheduleDraft {
	return domain.ScheduleDraft{
		Website:   website,
		AllDay:    true,
		StartDate: start,
		EndDate:   end,
		Repeat:    domain.RepeatNone,
	}
}

// Window returns a draft blocking website on date between from and to.
func Window(website, date, from, to string) domain.ScheduleDraft {
	return domain.ScheduleDraft{
		Website:   website,
		StartDate: date,
		StartTime: from,
		EndDate:   date,
		EndTime:   to,
		Repeat:    domain.RepeatNone,
	}
}
