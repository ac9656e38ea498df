package infra

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// RulesFileName is the default ruleset file inside the data directory.
const RulesFileName = "rules.json"

// rulesetFile is the on-disk layout of the ruleset.
type rulesetFile struct {
	Version int                   `json:"version"`
	Rules   []domain.BlockingRule `json:"rules"`
}

// FileRuleEngine implements domain.RuleEngine as a JSON ruleset file that a
// browser integration or proxy can consume. Updates are applied under an
// flock and replace the file atomically.
type FileRuleEngine struct {
	path string
}

// NewFileRuleEngine creates an engine writing to path.
func NewFileRuleEngine(path string) *FileRuleEngine {
	return &FileRuleEngine{path: path}
}

// Path returns the ruleset file path.
func (e *FileRuleEngine) Path() string {
	return e.path
}

// DynamicRules reads the installed rules. A missing or corrupt file means
// no rules; the next update replaces it.
func (e *FileRuleEngine) DynamicRules(ctx context.Context) ([]domain.BlockingRule, error) {
	return e.read()
}

// UpdateDynamicRules applies update all-or-nothing.
func (e *FileRuleEngine) UpdateDynamicRules(ctx context.Context, update domain.RuleUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0700); err != nil {
		return err
	}
	unlock, err := lockFile(e.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	installed, err := e.read()
	if err != nil {
		return err
	}
	next, err := policy.ApplyRuleUpdate(installed, update)
	if err != nil {
		return err
	}
	if next == nil {
		next = []domain.BlockingRule{}
	}
	return atomicWriteJSON(e.path, rulesetFile{Version: 1, Rules: next})
}

func (e *FileRuleEngine) read() ([]domain.BlockingRule, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f rulesetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil
	}
	return f.Rules, nil
}

// Ensure FileRuleEngine implements domain.RuleEngine.
var _ domain.RuleEngine = (*FileRuleEngine)(nil)
