package scoring

import (
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOverrideLatestRuleWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &core.NormalizedMessage{
		SenderDomain: "partner.com",
		Subject:      "invoice for march",
		BodyText:     "see attachment",
	}

	rules := []core.CustomRule{
		{
			ID: "older", Type: core.RuleDomain, Value: "partner.com",
			ForceCategory: core.CategorySafe, Active: true, CreatedAt: base,
		},
		{
			ID: "newer", Type: core.RuleKeyword, Value: "invoice",
			ForceCategory: core.CategoryHighMalicious, Active: true, CreatedAt: base.Add(time.Hour),
		},
	}

	winner := ResolveOverride(msg, rules)
	require.NotNil(t, winner)
	assert.Equal(t, "newer", winner.ID)

	// Order in the slice must not matter
	winner = ResolveOverride(msg, []core.CustomRule{rules[1], rules[0]})
	require.NotNil(t, winner)
	assert.Equal(t, "newer", winner.ID)
}

func TestResolveOverrideSkipsInactiveRules(t *testing.T) {
	msg := &core.NormalizedMessage{SenderDomain: "partner.com"}

	rules := []core.CustomRule{{
		ID: "r1", Type: core.RuleDomain, Value: "partner.com",
		ForceCategory: core.CategorySafe, Active: false, CreatedAt: time.Now(),
	}}
	assert.Nil(t, ResolveOverride(msg, rules))
}

func TestResolveOverrideNoMatch(t *testing.T) {
	msg := &core.NormalizedMessage{
		SenderDomain: "other.com",
		Subject:      "hello",
		BodyText:     "world",
	}
	rules := []core.CustomRule{{
		ID: "r1", Type: core.RuleKeyword, Value: "invoice",
		ForceCategory: core.CategorySafe, Active: true, CreatedAt: time.Now(),
	}}
	assert.Nil(t, ResolveOverride(msg, rules))
}

func TestRuleMatchesDomainContains(t *testing.T) {
	rule := &core.CustomRule{Type: core.RuleDomain, Value: "evil.com"}

	assert.True(t, ruleMatches(rule, &core.NormalizedMessage{SenderDomain: "evil.com"}))
	assert.True(t, ruleMatches(rule, &core.NormalizedMessage{SenderDomain: "mail.evil.com"}))
	assert.False(t, ruleMatches(rule, &core.NormalizedMessage{SenderDomain: "good.com"}))
}

func TestRuleMatchesKeywordCaseInsensitive(t *testing.T) {
	rule := &core.CustomRule{Type: core.RuleKeyword, Value: "Gift Card"}

	assert.True(t, ruleMatches(rule, &core.NormalizedMessage{Subject: "Free GIFT CARD inside"}))
	assert.True(t, ruleMatches(rule, &core.NormalizedMessage{BodyText: "claim your gift card"}))
	assert.False(t, ruleMatches(rule, &core.NormalizedMessage{Subject: "Quarterly report"}))
}

func TestRuleMatchesEmptyValue(t *testing.T) {
	rule := &core.CustomRule{Type: core.RuleKeyword, Value: ""}
	assert.False(t, ruleMatches(rule, &core.NormalizedMessage{Subject: "anything"}))
}
