// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"encoding/json"
	"time"
)

// Repeat is the recurrence label of a schedule.
// Blocking is governed only by the stored date range; the label is cosmetic.
type Repeat string

const (
	RepeatNone     Repeat = "none"
	RepeatDaily    Repeat = "daily"
	RepeatWeekdays Repeat = "weekdays"
	RepeatWeekly   Repeat = "weekly"
	RepeatMonthly  Repeat = "monthly"
	RepeatYearly   Repeat = "yearly"
)

// Valid reports whether r is one of the known repeat values.
func (r Repeat) Valid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekdays, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	}
	return false
}

// ScheduleVersion is the current persisted record version.
const ScheduleVersion = 1

// Storage keys.
const (
	KeySchedules       = "schedules"
	KeyBlockedWebsites = "blockedWebsites" // legacy, read-only
)

// Schedule is the sole persisted entity: a website blocked during a time window.
// Dates are YYYY-MM-DD and times HH:MM, both in the host's local timezone.
type Schedule struct {
	ID            int64  `json:"id"`
	Website       string `json:"website"`
	AllDay        bool   `json:"allDay"`
	StartDate     string `json:"startDate"`
	StartTime     string `json:"startTime"`
	EndDate       string `json:"endDate"`
	EndTime       string `json:"endTime"`
	Repeat        Repeat `json:"repeat"`
	RepeatEndDate string `json:"repeatEndDate,omitempty"`
	Version       int    `json:"version,omitempty"`
}

// ScheduleDraft is user input for creating or editing a schedule.
type ScheduleDraft struct {
	Website       string
	AllDay        bool
	StartDate     string
	StartTime     string
	EndDate       string
	EndTime       string
	Repeat        Repeat
	RepeatEndDate string
}

// WithID builds a schedule from the draft.
func (d ScheduleDraft) WithID(id int64) Schedule {
	return Schedule{
		ID:            id,
		Website:       d.Website,
		AllDay:        d.AllDay,
		StartDate:     d.StartDate,
		StartTime:     d.StartTime,
		EndDate:       d.EndDate,
		EndTime:       d.EndTime,
		Repeat:        d.Repeat,
		RepeatEndDate: d.RepeatEndDate,
		Version:       ScheduleVersion,
	}
}

// Draft returns the editable part of the schedule.
func (s Schedule) Draft() ScheduleDraft {
	return ScheduleDraft{
		Website:       s.Website,
		AllDay:        s.AllDay,
		StartDate:     s.StartDate,
		StartTime:     s.StartTime,
		EndDate:       s.EndDate,
		EndTime:       s.EndTime,
		Repeat:        s.Repeat,
		RepeatEndDate: s.RepeatEndDate,
	}
}

// Rule action and resource types understood by rule engines.
const (
	RuleActionRedirect    = "redirect"
	ResourceTypeMainFrame = "main_frame"
)

// RedirectTarget is where a blocked navigation is sent.
type RedirectTarget struct {
	URL string `json:"url"`
}

// RuleAction describes what happens to a matching request.
type RuleAction struct {
	Type     string          `json:"type"`
	Redirect *RedirectTarget `json:"redirect,omitempty"`
}

// RuleCondition selects the requests a rule applies to.
type RuleCondition struct {
	URLFilter     string   `json:"urlFilter"`
	ResourceTypes []string `json:"resourceTypes"`
}

// BlockingRule is a derived directive redirecting matching navigations.
// Rebuilt from scratch on every synchronization, never diffed.
type BlockingRule struct {
	ID        int           `json:"id"`
	Priority  int           `json:"priority"`
	Action    RuleAction    `json:"action"`
	Condition RuleCondition `json:"condition"`
}

// RuleUpdate is one atomic batch sent to a rule engine.
type RuleUpdate struct {
	RemoveRuleIDs []int          `json:"removeRuleIds"`
	AddRules      []BlockingRule `json:"addRules"`
}

// StorageChange holds the old and new value of one changed key.
// A nil value means the key was absent.
type StorageChange struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// ChangeEvent is delivered to store subscribers after a write.
type ChangeEvent struct {
	Changes map[string]StorageChange
	Area    string // storage area name, e.g. "sync"
	Origin  string // instance id of the writing process
}

// Message is the Command Surface request.
type Message struct {
	Action string `cbor:"action" json:"action"`
}

// Command Surface actions.
const (
	ActionUpdateRules = "updateRules"
	ActionActivate    = "activate"
	ActionPing        = "ping"
)

// Trigger identifies the lifecycle event that activated the daemon.
type Trigger string

const (
	TriggerInstall Trigger = "install"
	TriggerStartup Trigger = "startup"
)

// Named recurring timers.
const (
	AlarmCheckSchedule    = "checkSchedule"
	AlarmCleanupSchedules = "cleanupSchedules"
)

// Alarm is a named recurring timer.
type Alarm struct {
	Name   string
	Period time.Duration
}

// SyncResult captures what happened during a single resync.
type SyncResult struct {
	PrunedIDs      []int64
	ActiveWebsites []string
	RulesInstalled int
	RulesRemoved   int
	ExecutedAt     time.Time
	DurationMs     int64
}

// RegistryEntry stores the running daemon's state for the status command.
// Persisted to a file for cross-process discovery.
type RegistryEntry struct {
	Version       int    `json:"version"`
	DaemonPID     int    `json:"daemon_pid"`
	SocketPath    string `json:"socket_path"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	LastResync    int64  `json:"last_resync,omitempty"`
	ActiveRules   int    `json:"active_rules"`
	Mode          string `json:"mode,omitempty"` // "user" or "system"
	AppVersion    string `json:"app_version,omitempty"`
}
