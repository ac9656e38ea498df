package domain

import (
	"context"
	"encoding/json"
	"time"
)

// KVStore is the namespaced key-value store holding all durable state.
// Writes merge by key; values are replaced whole.
// Implementation: SQLCipher database (cross-process) or in-memory (tests).
type KVStore interface {
	// Get returns the requested keys that exist. Missing keys are omitted.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set writes every key in items and notifies subscribers.
	Set(ctx context.Context, items map[string]json.RawMessage) error

	// Subscribe registers fn for change events. The returned func unsubscribes.
	Subscribe(fn func(ChangeEvent)) (unsubscribe func())
}

// RuleEngine is the declarative network rule layer.
type RuleEngine interface {
	// DynamicRules returns every rule currently installed by this program.
	DynamicRules(ctx context.Context) ([]BlockingRule, error)

	// UpdateDynamicRules applies one batch all-or-nothing.
	UpdateDynamicRules(ctx context.Context, update RuleUpdate) error
}

// ResyncRequester asks the engine to resynchronize rules (Command Surface).
type ResyncRequester interface {
	RequestResync(ctx context.Context) error
}

// Synchronizer rebuilds the installed rule set from stored schedules.
type Synchronizer interface {
	Resync(ctx context.Context) (*SyncResult, error)
}

// AlarmManager manages named recurring timers.
type AlarmManager interface {
	// Get returns the alarm, or false if it doesn't exist.
	Get(name string) (*Alarm, bool)

	// Create starts a recurring alarm. Returns ErrAlarmExists for a duplicate.
	Create(name string, period time.Duration) error

	// Clear stops and forgets an alarm.
	Clear(name string) bool

	// Fired delivers alarm names as they go off.
	Fired() <-chan string
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// NameOf returns the process name for pid.
	NameOf(pid int) (string, error)

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry records the running daemon for discovery by the CLI.
type DaemonRegistry interface {
	// Register saves the daemon's pid and socket.
	Register(entry RegistryEntry) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// RecordResync stores the time and size of the last rule rewrite.
	RecordResync(at time.Time, rules int) error

	// IsDaemonAlive checks the registered pid.
	IsDaemonAlive() (bool, error)

	// GetAll returns the registry state, nil if nothing registered.
	GetAll() (*RegistryEntry, error)

	// Unregister removes the entry if it still names pid.
	Unregister(pid int) error
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}

// AutostartManager installs the OS service that runs the daemon at login
// or boot. Implementation: launchd on macOS, systemd on Linux.
type AutostartManager interface {
	Install(execPath, configPath string) error
	Uninstall() error
	IsInstalled() bool
	NeedsUpdate(execPath, configPath string) bool
}
