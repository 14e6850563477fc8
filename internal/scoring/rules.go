package scoring

import (
	"fmt"
	"strings"

	"github.com/phishdefender/phishdefender/internal/core"
)

// ResolveOverride evaluates the active custom rules against a message
// and returns the rule whose forced category wins, or nil when none
// match. When several rules match, the most recently created one wins;
// on equal creation timestamps the later rule in the slice wins.
func ResolveOverride(msg *core.NormalizedMessage, rules []core.CustomRule) *core.CustomRule {
	var winner *core.CustomRule

	for i := range rules {
		rule := &rules[i]
		if !rule.Active || !ruleMatches(rule, msg) {
			continue
		}
		if winner == nil || !rule.CreatedAt.Before(winner.CreatedAt) {
			winner = rule
		}
	}
	return winner
}

// ruleMatches applies one rule's matching strategy. The rule set is a
// closed set of tagged variants; anything unknown matches nothing.
func ruleMatches(rule *core.CustomRule, msg *core.NormalizedMessage) bool {
	value := strings.ToLower(rule.Value)
	if value == "" {
		return false
	}

	switch rule.Type {
	case core.RuleDomain:
		domain := strings.ToLower(msg.SenderDomain)
		return domain == value || strings.Contains(domain, value)
	case core.RuleKeyword:
		haystack := strings.ToLower(msg.Subject + " " + msg.BodyText)
		return strings.Contains(haystack, value)
	}
	return false
}

func ruleReason(rule *core.CustomRule) string {
	return fmt.Sprintf("Force-classified by custom %s rule %q -> %s", rule.Type, rule.Value, rule.ForceCategory)
}
