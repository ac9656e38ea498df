// Package main is the CLI entry point for webmon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/command"
	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/logging"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Website monitor - blocks distracting websites on a schedule",
	Long: `webmon blocks websites during the time windows you schedule.
A background daemon checks the schedules every minute and keeps the
installed blocking rules in step with them.`,
	Version:      Version,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler daemon",
	Long: `Starts the scheduler daemon if it is not already running, then asks it
to re-create its timers and resynchronize the blocking rules.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and blocking status",
	RunE:  runStatus,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Resynchronize blocking rules now",
	Long:  `Asks the daemon to rebuild the blocking rules from the stored schedules immediately.`,
	RunE:  runResync,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List installed blocking rules",
	Long:  `Lists the rules currently installed in the rule engine. Use --match to test a URL against them.`,
	RunE:  runRules,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning the daemon
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	configPath string
	debug      bool
	jsonOutput bool
	matchURL   string

	noAutostart bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $WEBMON_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	startCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "Don't install the login/boot service")
	rulesCmd.Flags().StringVar(&matchURL, "match", "", "Show which rule, if any, blocks this URL")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := logging.NewCLI(debug)
	a, err := openApp(logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Execution mode: %s\n", a.cfg.Mode)

	ctx := cmd.Context()
	alive, _ := a.registry.IsDaemonAlive()
	if alive {
		if err := a.client.Activate(ctx); err == nil {
			fmt.Println("webmon is already running")
			return nil
		}
	}

	// A loaded service unit starts the daemon itself; spawn only without one.
	var ping *command.PingResult
	if !noAutostart && installAutostart() {
		ping, err = daemon.WaitReady(ctx, a.client, 5*time.Second)
	}
	if ping == nil {
		if err := daemon.Spawn("", configPath); err != nil {
			return err
		}
		ping, err = daemon.WaitReady(ctx, a.client, 5*time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if err := a.client.Activate(ctx); err != nil {
		return err
	}

	fmt.Println("\n=== webmon Started ===")
	fmt.Printf("Daemon PID: %d\n", ping.PID)
	fmt.Printf("Socket: %s\n", a.cfg.SocketPath)
	fmt.Printf("Rule engine: %s (%s)\n", a.cfg.Rules.Engine, a.cfg.Rules.Path)
	fmt.Println("======================")
	return nil
}

// installAutostart installs or refreshes the service unit. Failures are
// reported but not fatal: the daemon still runs, it just won't auto-start.
func installAutostart() bool {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Printf("Warning: Could not resolve executable path: %v\n", err)
		return false
	}
	mode := infra.DetectExecMode()
	autostart, err := infra.NewAutostartManager(mode, infra.ExecCommandRunner{})
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		return false
	}

	absConfig := configPath
	if absConfig != "" {
		if p, err := filepath.Abs(absConfig); err == nil {
			absConfig = p
		}
	}
	if autostart.IsInstalled() && !autostart.NeedsUpdate(execPath, absConfig) {
		return false
	}
	if err := autostart.Install(execPath, absConfig); err != nil {
		fmt.Printf("Warning: Could not install autostart service: %v\n", err)
		fmt.Println("         (webmon will still run, but won't auto-start)")
		return false
	}
	fmt.Printf("Installed autostart service at %s\n", autostart.Path())
	return true
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := logging.NewCLI(debug)
	a, err := openApp(logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("\n=== webmon Status ===")

	entry, err := a.registry.GetAll()
	alive, _ := a.registry.IsDaemonAlive()
	switch {
	case err != nil || entry == nil:
		fmt.Println("Status: NOT RUNNING")
	case !alive:
		fmt.Printf("Status: NOT RUNNING (stale registration, pid %d)\n", entry.DaemonPID)
	default:
		fmt.Printf("Status: RUNNING (pid %d", entry.DaemonPID)
		if ping, err := a.client.Ping(cmd.Context()); err == nil && ping.Version != "" {
			fmt.Printf(", v%s", ping.Version)
		}
		fmt.Println(")")
		fmt.Printf("Mode: %s\n", entry.Mode)
		if entry.LastHeartbeat > 0 {
			fmt.Printf("Last heartbeat: %s ago\n", since(entry.LastHeartbeat))
		}
		if entry.LastResync > 0 {
			fmt.Printf("Last resync: %s ago (%d rules)\n", since(entry.LastResync), entry.ActiveRules)
		}
	}

	schedules, err := a.repo.List(cmd.Context())
	if err != nil {
		return err
	}
	date, clock := policy.LocalNow(time.Now())
	var active, upcoming []domain.Schedule
	for _, s := range schedules {
		switch {
		case policy.IsActive(s, date, clock):
			active = append(active, s)
		case policy.IsUpcoming(s, date, clock):
			upcoming = append(upcoming, s)
		}
	}

	fmt.Printf("\nSchedules: %d (%d active, %d upcoming)\n", len(schedules), len(active), len(upcoming))
	if len(active) > 0 {
		fmt.Println("Blocked now:")
		for _, s := range active {
			fmt.Printf("  - %s\n", s.Website)
		}
	}
	if !alive {
		fmt.Println("\nRun 'webmon start' to enable blocking.")
	}
	fmt.Println("=====================")
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	a, err := openApp(logging.NewCLI(debug), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.client.RequestResync(cmd.Context()); err != nil {
		if errors.Is(err, domain.ErrDaemonNotRunning) {
			return fmt.Errorf("%w; run 'webmon start' first", err)
		}
		return err
	}
	fmt.Println("Rules resynchronized.")
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	a, err := openApp(logging.NewCLI(debug), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Rules.Engine == config.EngineMemory {
		fmt.Println("The memory rule engine keeps rules inside the daemon only.")
		return nil
	}

	rules, err := a.ruleEngine().DynamicRules(cmd.Context())
	if err != nil {
		return err
	}

	if matchURL != "" {
		rule := policy.MatchRules(rules, matchURL, domain.ResourceTypeMainFrame)
		if rule == nil {
			fmt.Printf("%s is not blocked\n", matchURL)
			return nil
		}
		fmt.Printf("%s is blocked by rule %d (%s)\n", matchURL, rule.ID, rule.Condition.URLFilter)
		return nil
	}

	if len(rules) == 0 {
		fmt.Println("No rules installed.")
		return nil
	}
	for _, r := range rules {
		target := ""
		if r.Action.Redirect != nil {
			target = r.Action.Redirect.URL
		}
		fmt.Printf("%5d  %-40s -> %s\n", r.ID, r.Condition.URLFilter, target)
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewOrFallback(cfg.Log)
	defer func() { _ = logger.Sync() }()

	// The daemon never requests resyncs from itself.
	a, err := openApp(logger, false)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer a.Close()

	synchronizer := usecase.NewSynchronizer(a.repo, a.ruleEngine(), a.cfg.Rules.RedirectURL, logger)
	cleaner := usecase.NewCleaner(a.repo, logger)
	alarms := infra.NewTickerAlarms()
	defer alarms.ClearAll()

	dcfg := daemon.Config{
		CheckInterval:      a.cfg.Daemon.CheckInterval,
		CleanupInterval:    a.cfg.Daemon.CleanupInterval,
		HeartbeatInterval:  a.cfg.Daemon.HeartbeatInterval,
		StoreWatchInterval: a.cfg.Store.WatchInterval,
		SocketPath:         a.cfg.SocketPath,
		AppVersion:         Version,
		Mode:               string(a.cfg.Mode),
	}
	d := daemon.New(dcfg, synchronizer, cleaner, alarms, a.registry, a.pm, a.repo, a.store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	return d.Run(ctx)
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("webmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func since(unix int64) time.Duration {
	return time.Since(time.Unix(unix, 0)).Round(time.Second)
}
