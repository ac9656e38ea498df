package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Validation reasons shown to the user.
const (
	ReasonWebsiteRequired = "please enter a website"
	ReasonInvalidWebsite  = "please enter a valid website (e.g., example.com, sub.example.com)"
	ReasonDuplicate       = "this website already has a schedule"
	ReasonEndBeforeStart  = "end must be after start"
)

// ValidateDraft normalizes a draft and checks it against the schedules
// already stored. excludeID is the schedule being edited (0 when adding).
// The returned draft is what should be persisted.
func ValidateDraft(draft domain.ScheduleDraft, existing []domain.Schedule, excludeID int64) (domain.ScheduleDraft, error) {
	if strings.TrimSpace(draft.Website) == "" {
		return draft, &domain.ValidationError{Reason: ReasonWebsiteRequired}
	}

	out := draft
	out.Website = NormalizeWebsite(draft.Website)
	if !ValidWebsite(out.Website) {
		return draft, &domain.ValidationError{Reason: ReasonInvalidWebsite}
	}

	for _, s := range existing {
		if s.ID != excludeID && NormalizeWebsite(s.Website) == out.Website {
			return draft, &domain.ValidationError{Reason: ReasonDuplicate}
		}
	}

	if out.Repeat == "" {
		out.Repeat = domain.RepeatNone
	}
	if !out.Repeat.Valid() {
		return draft, domain.NewValidationError("unknown repeat %q", draft.Repeat)
	}

	start, err := parseDate("start date", draft.StartDate)
	if err != nil {
		return draft, err
	}
	end, err := parseDate("end date", draft.EndDate)
	if err != nil {
		return draft, err
	}
	out.StartDate = start.Format(DateLayout)
	out.EndDate = end.Format(DateLayout)

	if out.RepeatEndDate != "" {
		rend, err := parseDate("repeat end date", draft.RepeatEndDate)
		if err != nil {
			return draft, err
		}
		out.RepeatEndDate = rend.Format(DateLayout)
	}

	if draft.AllDay {
		if end.Before(start) {
			return draft, &domain.ValidationError{Reason: ReasonEndBeforeStart}
		}
		out.StartTime = AllDayStart
		out.EndTime = AllDayEnd
		return out, nil
	}

	startClock, err := parseClock("start time", draft.StartTime)
	if err != nil {
		return draft, err
	}
	endClock, err := parseClock("end time", draft.EndTime)
	if err != nil {
		return draft, err
	}
	out.StartTime = startClock.Format(TimeLayout)
	out.EndTime = endClock.Format(TimeLayout)

	startAt := combine(start, startClock)
	endAt := combine(end, endClock)
	if !endAt.After(startAt) {
		return draft, &domain.ValidationError{Reason: ReasonEndBeforeStart}
	}
	return out, nil
}

// CheckStored verifies a schedule loaded from storage has well-formed
// fields. It does not re-run the duplicate check.
func CheckStored(s domain.Schedule) error {
	if s.Version < 0 || s.Version > domain.ScheduleVersion {
		return fmt.Errorf("unsupported schedule version %d", s.Version)
	}
	if s.ID <= 0 {
		return fmt.Errorf("invalid id %d", s.ID)
	}
	if s.Website != NormalizeWebsite(s.Website) || !ValidWebsite(s.Website) {
		return fmt.Errorf("invalid website %q", s.Website)
	}
	if s.Repeat != "" && !s.Repeat.Valid() {
		return fmt.Errorf("unknown repeat %q", s.Repeat)
	}
	for _, f := range []struct{ layout, value string }{
		{DateLayout, s.StartDate},
		{DateLayout, s.EndDate},
		{TimeLayout, s.StartTime},
		{TimeLayout, s.EndTime},
	} {
		if !exact(f.layout, f.value) {
			return fmt.Errorf("malformed date/time %q", f.value)
		}
	}
	if s.RepeatEndDate != "" && !exact(DateLayout, s.RepeatEndDate) {
		return fmt.Errorf("malformed repeat end date %q", s.RepeatEndDate)
	}
	if s.EndDate < s.StartDate {
		return fmt.Errorf("end date %s before start date %s", s.EndDate, s.StartDate)
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, domain.NewValidationError("invalid %s %q, want YYYY-MM-DD", field, value)
	}
	return t, nil
}

func parseClock(field, value string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("invalid %s %q, want HH:MM", field, value)
	}
	return t, nil
}

func combine(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.Local)
}

// exact reports whether value parses with layout and is already canonical.
func exact(layout, value string) bool {
	t, err := time.Parse(layout, value)
	return err == nil && t.Format(layout) == value
}
