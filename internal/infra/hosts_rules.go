package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// DefaultHostsPath is the system hosts file.
const DefaultHostsPath = "/etc/hosts"

const (
	hostsBegin      = "# BEGIN webmon managed block"
	hostsEnd        = "# END webmon managed block"
	hostsRulePrefix = "# rule "
	sinkAddress     = "0.0.0.0"
)

// HostsRuleEngine implements domain.RuleEngine as a managed block in a hosts
// file, sinking blocked hostnames to 0.0.0.0. Each rule is kept as a comment
// line so the installed set can be read back exactly.
//
// Hosts files can't redirect or wildcard, so "*://*.host/*" sinks "www.host"
// and "*://host/*" sinks "host". Ports are dropped and IP hosts are skipped.
type HostsRuleEngine struct {
	path string
}

// NewHostsRuleEngine creates an engine managing the hosts file at path.
func NewHostsRuleEngine(path string) *HostsRuleEngine {
	return &HostsRuleEngine{path: path}
}

// Path returns the hosts file path.
func (e *HostsRuleEngine) Path() string {
	return e.path
}

// DynamicRules returns the rules recorded in the managed block.
func (e *HostsRuleEngine) DynamicRules(ctx context.Context) ([]domain.BlockingRule, error) {
	content, err := e.readFile()
	if err != nil {
		return nil, err
	}
	_, block, _ := splitManagedBlock(content)
	return parseBlockRules(block), nil
}

// UpdateDynamicRules applies update all-or-nothing and rewrites the block.
// Lines outside the managed block are preserved.
func (e *HostsRuleEngine) UpdateDynamicRules(ctx context.Context, update domain.RuleUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := lockFile(filepath.Join(os.TempDir(), "webmon-hosts.lock"))
	if err != nil {
		return err
	}
	defer unlock()

	content, err := e.readFile()
	if err != nil {
		return err
	}
	before, block, after := splitManagedBlock(content)

	next, err := policy.ApplyRuleUpdate(parseBlockRules(block), update)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	out.WriteString(before)
	if len(next) > 0 {
		if out.Len() > 0 && !strings.HasSuffix(before, "\n") {
			out.WriteByte('\n')
		}
		if err := renderManagedBlock(&out, next); err != nil {
			return err
		}
	}
	out.WriteString(after)

	return writeInPlace(e.path, out.Bytes())
}

func (e *HostsRuleEngine) readFile() (string, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read hosts file: %w", err)
	}
	return string(data), nil
}

// HostsFor returns the hostnames a rule sinks.
func HostsFor(rule domain.BlockingRule) []string {
	f := rule.Condition.URLFilter
	if !strings.HasPrefix(f, "*://") || !strings.HasSuffix(f, "/*") {
		return nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(f, "*://"), "/*")
	wildcard := strings.HasPrefix(host, "*.")
	host = strings.TrimPrefix(host, "*.")
	host, _ = policy.SplitHostPort(host)

	if host == "" || strings.ContainsAny(host, "*/") || policy.IsIPHost(host) {
		return nil
	}
	if wildcard {
		return []string{"www." + host}
	}
	return []string{host}
}

// splitManagedBlock returns the text before, inside and after the block.
// Without a block, everything is "before".
func splitManagedBlock(content string) (before, block, after string) {
	start := strings.Index(content, hostsBegin)
	if start < 0 {
		return content, "", ""
	}
	rest := content[start:]
	end := strings.Index(rest, hostsEnd)
	if end < 0 {
		// Unterminated block: treat the tail as ours.
		return content[:start], rest, ""
	}
	end += len(hostsEnd)
	if end < len(rest) && rest[end] == '\n' {
		end++
	}
	return content[:start], rest[:end], rest[end:]
}

func parseBlockRules(block string) []domain.BlockingRule {
	var rules []domain.BlockingRule
	sc := bufio.NewScanner(strings.NewReader(block))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, hostsRulePrefix) {
			continue
		}
		var r domain.BlockingRule
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, hostsRulePrefix)), &r); err != nil {
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

func renderManagedBlock(w *bytes.Buffer, rules []domain.BlockingRule) error {
	w.WriteString(hostsBegin + "\n")
	for _, r := range rules {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		w.WriteString(hostsRulePrefix)
		w.Write(data)
		w.WriteByte('\n')
		for _, host := range HostsFor(r) {
			fmt.Fprintf(w, "%s %s\n", sinkAddress, host)
		}
	}
	w.WriteString(hostsEnd + "\n")
	return nil
}

// writeInPlace replaces path's content. Rename is tried first; hosts files
// are often bind mounts where only an in-place write works.
func writeInPlace(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err == nil {
		if err := os.Rename(tmpPath, path); err == nil {
			return nil
		}
		os.Remove(tmpPath)
	}
	return os.WriteFile(path, data, mode)
}

// Ensure HostsRuleEngine implements domain.RuleEngine.
var _ domain.RuleEngine = (*HostsRuleEngine)(nil)
