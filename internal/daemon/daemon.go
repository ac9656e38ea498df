// Package daemon implements the scheduler daemon: the long-running process
// that keeps the installed blocking rules in step with the stored schedules.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/command"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// Config holds daemon configuration.
type Config struct {
	CheckInterval      time.Duration // checkSchedule alarm period
	CleanupInterval    time.Duration // cleanupSchedules alarm period
	HeartbeatInterval  time.Duration // registry heartbeat
	StoreWatchInterval time.Duration // cross-process change polling
	SocketPath         string
	AppVersion         string
	Mode               string // "user" or "system"
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:      time.Minute,
		CleanupInterval:    24 * time.Hour,
		HeartbeatInterval:  30 * time.Second,
		StoreWatchInterval: 2 * time.Second,
	}
}

// Cleaner removes schedules whose end date has passed.
type Cleaner interface {
	Cleanup(ctx context.Context) ([]domain.Schedule, error)
}

// ScheduleSource reports schedule list changes, including other processes' writes.
type ScheduleSource interface {
	OnChange(fn func([]domain.Schedule)) (cancel func())
}

// StoreWatcher polls the store for writes made by other processes.
type StoreWatcher interface {
	Watch(ctx context.Context, interval time.Duration)
}

// Daemon drives resyncs from alarms, commands and store changes.
// It keeps no state that must survive a restart: timers and schedules are
// re-derived on every activation.
type Daemon struct {
	config         Config
	synchronizer   domain.Synchronizer
	cleaner        Cleaner
	alarms         domain.AlarmManager
	registry       domain.DaemonRegistry
	processManager domain.ProcessManager
	schedules      ScheduleSource // optional
	storeWatcher   StoreWatcher   // optional
	logger         *zap.Logger

	// resyncs coalesces change-driven resync requests.
	resyncs chan struct{}

	mu         sync.Mutex
	lastResult *domain.SyncResult
}

// New creates a daemon. schedules and storeWatcher may be nil.
func New(
	config Config,
	synchronizer domain.Synchronizer,
	cleaner Cleaner,
	alarms domain.AlarmManager,
	registry domain.DaemonRegistry,
	pm domain.ProcessManager,
	schedules ScheduleSource,
	storeWatcher StoreWatcher,
	logger *zap.Logger,
) *Daemon {
	return &Daemon{
		config:         config,
		synchronizer:   synchronizer,
		cleaner:        cleaner,
		alarms:         alarms,
		registry:       registry,
		processManager: pm,
		schedules:      schedules,
		storeWatcher:   storeWatcher,
		logger:         logger,
		resyncs:        make(chan struct{}, 1),
	}
}

// EnsureTimers creates each named alarm that doesn't exist yet. Existing
// alarms are left alone so their schedule is not reset.
func (d *Daemon) EnsureTimers() error {
	timers := []domain.Alarm{
		{Name: domain.AlarmCheckSchedule, Period: d.config.CheckInterval},
		{Name: domain.AlarmCleanupSchedules, Period: d.config.CleanupInterval},
	}

	var errs []error
	for _, t := range timers {
		if _, ok := d.alarms.Get(t.Name); ok {
			continue
		}
		err := d.alarms.Create(t.Name, t.Period)
		if err != nil && !errors.Is(err, domain.ErrAlarmExists) {
			d.logger.Error("failed to create alarm", zap.String("alarm", t.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if err == nil {
			d.logger.Debug("alarm created", zap.String("alarm", t.Name), zap.Duration("period", t.Period))
		}
	}
	return errors.Join(errs...)
}

// Activate handles a lifecycle trigger: ensure timers, then resync once.
func (d *Daemon) Activate(ctx context.Context, trigger domain.Trigger) error {
	d.logger.Info("activating", zap.String("trigger", string(trigger)))

	timersErr := d.EnsureTimers()
	_, err := d.resync(ctx)
	return errors.Join(timersErr, err)
}

// Run registers the daemon, serves commands and loops on alarms until ctx
// is cancelled. It returns nil on a clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	pid := d.processManager.GetCurrentPID()
	if err := d.registry.Register(domain.RegistryEntry{
		DaemonPID:  pid,
		SocketPath: d.config.SocketPath,
		AppVersion: d.config.AppVersion,
		Mode:       d.config.Mode,
	}); err != nil {
		d.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}
	defer d.unregister(pid)

	d.logger.Info("daemon started",
		zap.Int("pid", pid),
		zap.String("socket", d.config.SocketPath))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	server := command.NewServer(d.config.SocketPath, d.logger)
	d.RegisterHandlers(server)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			d.logger.Error("command server stopped", zap.Error(err))
		}
	}()

	if d.storeWatcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.storeWatcher.Watch(ctx, d.config.StoreWatchInterval)
		}()
	}
	if d.schedules != nil {
		unsubscribe := d.schedules.OnChange(func([]domain.Schedule) { d.requestResync() })
		defer unsubscribe()
	}

	if err := d.Activate(ctx, domain.TriggerStartup); err != nil {
		d.logger.Warn("startup activation incomplete", zap.Error(err))
	}

	heartbeat := time.NewTicker(d.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return nil

		case name := <-d.alarms.Fired():
			d.onAlarm(ctx, name)

		case <-d.resyncs:
			d.resync(ctx)

		case <-heartbeat.C:
			if err := d.registry.UpdateHeartbeat(); err != nil {
				d.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// RegisterHandlers installs the command actions on server.
func (d *Daemon) RegisterHandlers(server *command.Server) {
	server.Handle(domain.ActionUpdateRules, func(ctx context.Context, _ domain.Message) (any, error) {
		_, err := d.resync(ctx)
		return nil, err
	})
	server.Handle(domain.ActionActivate, func(ctx context.Context, _ domain.Message) (any, error) {
		return nil, d.Activate(ctx, domain.TriggerInstall)
	})
	server.Handle(domain.ActionPing, func(ctx context.Context, _ domain.Message) (any, error) {
		return command.PingResult{
			PID:     d.processManager.GetCurrentPID(),
			Version: d.config.AppVersion,
		}, nil
	})
}

// LastResult returns the most recent successful sync, or nil.
func (d *Daemon) LastResult() *domain.SyncResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastResult
}

func (d *Daemon) onAlarm(ctx context.Context, name string) {
	switch name {
	case domain.AlarmCheckSchedule:
		d.resync(ctx)
	case domain.AlarmCleanupSchedules:
		if _, err := d.cleaner.Cleanup(ctx); err != nil {
			d.logger.Warn("cleanup failed", zap.Error(err))
		}
	default:
		d.logger.Debug("ignoring unknown alarm", zap.String("alarm", name))
	}
}

func (d *Daemon) resync(ctx context.Context) (*domain.SyncResult, error) {
	result, err := d.synchronizer.Resync(ctx)
	if err != nil {
		d.logger.Warn("resync failed", zap.Error(err))
	}
	if result == nil {
		return nil, err
	}

	d.mu.Lock()
	d.lastResult = result
	d.mu.Unlock()

	if len(result.PrunedIDs) > 0 || result.RulesInstalled != result.RulesRemoved {
		d.logger.Info("rules updated",
			zap.Strings("active_websites", result.ActiveWebsites),
			zap.Int("rules", result.RulesInstalled),
			zap.Int("pruned", len(result.PrunedIDs)))
	}
	if rerr := d.registry.RecordResync(result.ExecutedAt, result.RulesInstalled); rerr != nil {
		d.logger.Debug("failed to record resync", zap.Error(rerr))
	}
	return result, err
}

// requestResync schedules a resync on the run loop. Requests made while
// one is pending are merged.
func (d *Daemon) requestResync() {
	select {
	case d.resyncs <- struct{}{}:
	default:
	}
}

func (d *Daemon) unregister(pid int) {
	if err := d.registry.Unregister(pid); err != nil {
		d.logger.Warn("failed to clear registry", zap.Error(err))
	}
}
