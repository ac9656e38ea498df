package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/command"
	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

// app holds the components shared by CLI commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *infra.SQLCipherStore
	client   *command.Client
	repo     *usecase.Repository
	pm       domain.ProcessManager
	registry *infra.FileRegistry
}

// openApp loads config and opens the encrypted schedule store. With
// withRequester, schedule mutations ask the daemon to resync.
func openApp(logger *zap.Logger, withRequester bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	store, err := infra.OpenSQLCipherStore(cfg.DataDir, key, logger)
	if err != nil {
		return nil, err
	}

	client := command.NewClient(cfg.SocketPath)
	var requester domain.ResyncRequester
	if withRequester {
		requester = client
	}

	pm := infra.NewProcessManager()
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		repo:     usecase.NewRepository(store, requester, logger),
		pm:       pm,
		registry: infra.NewFileRegistry(cfg.DataDir, processName(), pm),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Debug("failed to close store", zap.Error(err))
	}
}

// ruleEngine builds the configured rule engine.
func (a *app) ruleEngine() domain.RuleEngine {
	switch a.cfg.Rules.Engine {
	case config.EngineHosts:
		return infra.NewHostsRuleEngine(a.cfg.Rules.Path)
	case config.EngineMemory:
		return infra.NewMemoryRuleEngine()
	default:
		return infra.NewFileRuleEngine(a.cfg.Rules.Path)
	}
}

// processName is the executable name the registry expects the daemon to run as.
func processName() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Base(exe)
}
