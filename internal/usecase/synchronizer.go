package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// RuleSynchronizer implements domain.Synchronizer.
// Each pass prunes completed schedules and replaces the installed rule set
// with one computed from scratch.
type RuleSynchronizer struct {
	repo        *Repository
	engine      domain.RuleEngine
	redirectURL string
	now         func() time.Time
	logger      *zap.Logger

	mu sync.Mutex // one Resync in flight per process
}

// NewSynchronizer creates a rule synchronizer using the host clock.
func NewSynchronizer(
	repo *Repository,
	engine domain.RuleEngine,
	redirectURL string,
	logger *zap.Logger,
) *RuleSynchronizer {
	return NewSynchronizerWithClock(repo, engine, redirectURL, time.Now, logger)
}

// NewSynchronizerWithClock creates a rule synchronizer with a custom clock (for testing).
func NewSynchronizerWithClock(
	repo *Repository,
	engine domain.RuleEngine,
	redirectURL string,
	now func() time.Time,
	logger *zap.Logger,
) *RuleSynchronizer {
	return &RuleSynchronizer{
		repo:        repo,
		engine:      engine,
		redirectURL: redirectURL,
		now:         now,
		logger:      logger,
	}
}

// Resync recomputes the blocking rules from the stored schedules.
func (s *RuleSynchronizer) Resync(ctx context.Context) (*domain.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	date, clock := policy.LocalNow(start)
	result := &domain.SyncResult{
		PrunedIDs:      make([]int64, 0),
		ActiveWebsites: make([]string, 0),
		ExecutedAt:     start,
	}

	schedules, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("resync: cannot read schedules", zap.Error(err))
		return nil, err
	}

	// Prune in the same pass so storage and rules agree.
	var pruneErr error
	removed, err := s.repo.pruneFrom(ctx, schedules, func(sc domain.Schedule) bool {
		return policy.IsCompleted(sc, date, clock)
	})
	if err != nil {
		s.logger.Warn("failed to prune completed schedules", zap.Error(err))
		pruneErr = err
	}
	if len(removed) > 0 {
		for _, sc := range removed {
			result.PrunedIDs = append(result.PrunedIDs, sc.ID)
		}
		s.logger.Info("removed completed schedules", zap.Int("count", len(removed)))
	}

	var websites []string
	for _, sc := range schedules {
		if policy.IsCompleted(sc, date, clock) || !policy.IsActive(sc, date, clock) {
			continue
		}
		websites = append(websites, sc.Website)
	}
	websites = policy.UniqueWebsites(websites)
	if len(websites) > policy.MaxRuleWebsites {
		s.logger.Warn("too many active websites, extra ones not blocked",
			zap.Int("active", len(websites)),
			zap.Int("limit", policy.MaxRuleWebsites))
		websites = websites[:policy.MaxRuleWebsites]
	}
	result.ActiveWebsites = append(result.ActiveWebsites, websites...)

	installed, err := s.engine.DynamicRules(ctx)
	if err != nil {
		engineErr := &domain.RuleEngineError{Err: err}
		s.logger.Error("resync: cannot read installed rules", zap.Error(err))
		return nil, errors.Join(engineErr, pruneErr)
	}

	update := domain.RuleUpdate{
		RemoveRuleIDs: make([]int, 0, len(installed)),
		AddRules:      policy.BuildRules(websites, s.redirectURL),
	}
	for _, r := range installed {
		update.RemoveRuleIDs = append(update.RemoveRuleIDs, r.ID)
	}

	if err := s.engine.UpdateDynamicRules(ctx, update); err != nil {
		engineErr := &domain.RuleEngineError{Err: err}
		s.logger.Error("rule update rejected", zap.Error(err))
		return nil, errors.Join(engineErr, pruneErr)
	}

	result.RulesRemoved = len(update.RemoveRuleIDs)
	result.RulesInstalled = len(update.AddRules)
	result.DurationMs = s.now().Sub(start).Milliseconds()

	s.logger.Debug("rules synchronized",
		zap.Int("active_websites", len(websites)),
		zap.Int("rules_installed", result.RulesInstalled),
		zap.Int("rules_removed", result.RulesRemoved))

	if pruneErr != nil {
		return result, pruneErr
	}
	return result, nil
}

// Ensure RuleSynchronizer implements domain.Synchronizer.
var _ domain.Synchronizer = (*RuleSynchronizer)(nil)
