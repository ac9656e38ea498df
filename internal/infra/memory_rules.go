package infra

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// MemoryRuleEngine implements domain.RuleEngine in process memory.
type MemoryRuleEngine struct {
	mu      sync.Mutex
	rules   []domain.BlockingRule
	updates int
}

// NewMemoryRuleEngine creates an engine with no rules installed.
func NewMemoryRuleEngine() *MemoryRuleEngine {
	return &MemoryRuleEngine{}
}

// DynamicRules returns a copy of the installed rules.
func (e *MemoryRuleEngine) DynamicRules(ctx context.Context) ([]domain.BlockingRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.BlockingRule(nil), e.rules...), nil
}

// UpdateDynamicRules applies update all-or-nothing.
func (e *MemoryRuleEngine) UpdateDynamicRules(ctx context.Context, update domain.RuleUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := policy.ApplyRuleUpdate(e.rules, update)
	if err != nil {
		return err
	}
	e.rules = next
	e.updates++
	return nil
}

// Updates returns how many batches were applied.
func (e *MemoryRuleEngine) Updates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

// Ensure MemoryRuleEngine implements domain.RuleEngine.
var _ domain.RuleEngine = (*MemoryRuleEngine)(nil)
