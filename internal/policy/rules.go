package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	// RuleIDOffset separates the subdomain rule ids from the bare-domain ids.
	RuleIDOffset = 1000

	// MaxRuleWebsites keeps the two id ranges disjoint.
	MaxRuleWebsites = RuleIDOffset

	// RulePriority is the priority of every generated rule.
	RulePriority = 1
)

// BuildRules creates two redirect rules per website: one for all
// subdomains (id i+1) and one for the bare domain (id i+1+RuleIDOffset).
// Callers must pass at most MaxRuleWebsites deduplicated websites.
func BuildRules(websites []string, redirectURL string) []domain.BlockingRule {
	if len(websites) == 0 {
		return nil
	}
	rules := make([]domain.BlockingRule, 0, 2*len(websites))
	for i, website := range websites {
		rules = append(rules,
			redirectRule(i+1, "*://*."+website+"/*", redirectURL),
			redirectRule(i+1+RuleIDOffset, "*://"+website+"/*", redirectURL),
		)
	}
	return rules
}

// UniqueWebsites drops repeated websites, keeping first occurrences in order.
func UniqueWebsites(websites []string) []string {
	seen := make(map[string]bool, len(websites))
	out := make([]string, 0, len(websites))
	for _, w := range websites {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func redirectRule(id int, filter, redirectURL string) domain.BlockingRule {
	return domain.BlockingRule{
		ID:       id,
		Priority: RulePriority,
		Action: domain.RuleAction{
			Type:     domain.RuleActionRedirect,
			Redirect: &domain.RedirectTarget{URL: redirectURL},
		},
		Condition: domain.RuleCondition{
			URLFilter:     filter,
			ResourceTypes: []string{domain.ResourceTypeMainFrame},
		},
	}
}

// ApplyRuleUpdate computes the rule set that results from applying update
// to installed. The whole batch is rejected if any added rule is invalid,
// so engines can implement all-or-nothing semantics on top of it.
// The result is sorted by id.
func ApplyRuleUpdate(installed []domain.BlockingRule, update domain.RuleUpdate) ([]domain.BlockingRule, error) {
	remove := make(map[int]bool, len(update.RemoveRuleIDs))
	for _, id := range update.RemoveRuleIDs {
		remove[id] = true
	}

	ids := make(map[int]bool)
	next := make([]domain.BlockingRule, 0, len(installed)+len(update.AddRules))
	for _, r := range installed {
		if remove[r.ID] {
			continue
		}
		ids[r.ID] = true
		next = append(next, r)
	}

	for _, r := range update.AddRules {
		if err := checkRule(r); err != nil {
			return nil, err
		}
		if ids[r.ID] {
			return nil, fmt.Errorf("rule with id %d already installed", r.ID)
		}
		ids[r.ID] = true
		next = append(next, r)
	}

	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
	return next, nil
}

func checkRule(r domain.BlockingRule) error {
	if r.ID <= 0 {
		return fmt.Errorf("rule id must be positive, got %d", r.ID)
	}
	if r.Condition.URLFilter == "" {
		return fmt.Errorf("rule %d: empty urlFilter", r.ID)
	}
	if len(r.Condition.ResourceTypes) == 0 {
		return fmt.Errorf("rule %d: no resource types", r.ID)
	}
	if r.Action.Type != domain.RuleActionRedirect {
		return fmt.Errorf("rule %d: unsupported action %q", r.ID, r.Action.Type)
	}
	if r.Action.Redirect == nil || r.Action.Redirect.URL == "" {
		return fmt.Errorf("rule %d: redirect without url", r.ID)
	}
	return nil
}

// MatchURLFilter reports whether rawURL matches a urlFilter pattern.
// Supported syntax: '*' wildcard, '|' start/end anchors, '||' domain anchor
// and '^' separator. Matching is case-insensitive and unanchored unless
// '|' is used.
func MatchURLFilter(filter, rawURL string) bool {
	re, err := compileFilter(filter)
	if err != nil {
		return false
	}
	return re.MatchString(canonicalURL(rawURL))
}

// MatchRules returns the highest-priority rule matching a navigation of
// the given resource type, or nil. Lower ids win ties.
func MatchRules(rules []domain.BlockingRule, rawURL, resourceType string) *domain.BlockingRule {
	var best *domain.BlockingRule
	for i := range rules {
		r := &rules[i]
		if !hasResourceType(r, resourceType) || !MatchURLFilter(r.Condition.URLFilter, rawURL) {
			continue
		}
		if best == nil || r.Priority > best.Priority || (r.Priority == best.Priority && r.ID < best.ID) {
			best = r
		}
	}
	return best
}

func hasResourceType(r *domain.BlockingRule, resourceType string) bool {
	for _, t := range r.Condition.ResourceTypes {
		if t == resourceType {
			return true
		}
	}
	return false
}

func compileFilter(filter string) (*regexp.Regexp, error) {
	f := strings.ToLower(filter)
	var b strings.Builder
	b.WriteString("(?s)")

	switch {
	case strings.HasPrefix(f, "||"):
		b.WriteString(`^[a-z][a-z0-9+.-]*://([^/?#]*\.)?`)
		f = f[2:]
	case strings.HasPrefix(f, "|"):
		b.WriteString("^")
		f = f[1:]
	}
	anchoredEnd := strings.HasSuffix(f, "|")
	if anchoredEnd {
		f = f[:len(f)-1]
	}

	for _, c := range f {
		switch c {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(`([^a-z0-9_.%-]|$)`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if anchoredEnd {
		b.WriteString("$")
	}
	return regexp.Compile(b.String())
}

// canonicalURL lowercases scheme and host and gives bare hosts a "/" path,
// the way browsers present navigation URLs.
func canonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return strings.ToLower(u.String())
}
