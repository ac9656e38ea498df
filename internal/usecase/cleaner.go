package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// Cleaner garbage-collects schedules whose end date has passed,
// regardless of repeat.
type Cleaner struct {
	repo   *Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewCleaner creates a cleaner using the host clock.
func NewCleaner(repo *Repository, logger *zap.Logger) *Cleaner {
	return &Cleaner{repo: repo, now: time.Now, logger: logger}
}

// Cleanup drops every schedule with endDate strictly before today.
// Returns the removed schedules.
func (c *Cleaner) Cleanup(ctx context.Context) ([]domain.Schedule, error) {
	today, _ := policy.LocalNow(c.now())

	removed, err := c.repo.Prune(ctx, func(s domain.Schedule) bool {
		return s.EndDate < today
	})
	if err != nil {
		c.logger.Error("cleanup failed", zap.Error(err))
		return nil, err
	}

	if len(removed) > 0 {
		c.logger.Info("removed past schedules",
			zap.Int("count", len(removed)),
			zap.String("today", today))
	}
	return removed, nil
}
