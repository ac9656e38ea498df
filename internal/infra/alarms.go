package infra

import (
	"fmt"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// TickerAlarms implements domain.AlarmManager with one time.Ticker per alarm.
// A firing that finds the channel full is dropped, so a slow consumer sees
// coalesced alarms rather than a backlog.
type TickerAlarms struct {
	mu     sync.Mutex
	alarms map[string]*tickerAlarm
	fired  chan string
}

type tickerAlarm struct {
	alarm domain.Alarm
	stop  chan struct{}
}

// NewTickerAlarms creates an alarm manager with no alarms.
func NewTickerAlarms() *TickerAlarms {
	return &TickerAlarms{
		alarms: make(map[string]*tickerAlarm),
		fired:  make(chan string, 8),
	}
}

// Get returns the alarm, or false if it doesn't exist.
func (m *TickerAlarms) Get(name string) (*domain.Alarm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[name]
	if !ok {
		return nil, false
	}
	alarm := a.alarm
	return &alarm, true
}

// Create starts a recurring alarm firing every period.
func (m *TickerAlarms) Create(name string, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("alarm %s: period must be positive, got %s", name, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alarms[name]; ok {
		return domain.ErrAlarmExists
	}

	a := &tickerAlarm{
		alarm: domain.Alarm{Name: name, Period: period},
		stop:  make(chan struct{}),
	}
	m.alarms[name] = a
	go m.run(a)
	return nil
}

// Clear stops and forgets an alarm. Returns false if it didn't exist.
func (m *TickerAlarms) Clear(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[name]
	if !ok {
		return false
	}
	close(a.stop)
	delete(m.alarms, name)
	return true
}

// ClearAll stops every alarm.
func (m *TickerAlarms) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, a := range m.alarms {
		close(a.stop)
		delete(m.alarms, name)
	}
}

// Fired delivers alarm names as they go off.
func (m *TickerAlarms) Fired() <-chan string {
	return m.fired
}

func (m *TickerAlarms) run(a *tickerAlarm) {
	ticker := time.NewTicker(a.alarm.Period)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			select {
			case m.fired <- a.alarm.Name:
			default:
			}
		}
	}
}

// Ensure TickerAlarms implements domain.AlarmManager.
var _ domain.AlarmManager = (*TickerAlarms)(nil)
