package scoring

import (
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSettings() core.Settings {
	return core.Settings{HighThreshold: 0.6, LowThreshold: 0.3}
}

func TestEvaluateSpoofedUrgentMail(t *testing.T) {
	engine := NewEngine([]string{"company.com"}, []string{"paypal.com"}, zap.NewNop())

	msg := &core.NormalizedMessage{
		MessageID:    "spoof-1",
		Sender:       "security@paypa1.com",
		SenderDomain: "paypa1.com",
		Subject:      "Verify your account within 24 hours",
		BodyText:     "Click the link to verify your account",
	}

	verdict := engine.Evaluate(msg, nil, testSettings())

	// 0.35 spoof + 0.20 urgency + 0.10 unknown domain + 0.15 keyword
	assert.InDelta(t, 0.80, verdict.RawScore, 0.001)
	assert.Equal(t, core.CategoryHighMalicious, verdict.Category)
	assert.NotEmpty(t, verdict.Reasoning)
}

func TestEvaluateKnownDomainIsSafe(t *testing.T) {
	engine := NewEngine([]string{"company.com"}, []string{"paypal.com"}, zap.NewNop())

	msg := &core.NormalizedMessage{
		MessageID:    "safe-1",
		Sender:       "alice@company.com",
		SenderDomain: "company.com",
		Subject:      "Quarterly planning notes",
		BodyText:     "Attached are the notes from Tuesday.",
	}

	verdict := engine.Evaluate(msg, nil, testSettings())

	assert.Equal(t, 0.0, verdict.RawScore)
	assert.Equal(t, core.CategorySafe, verdict.Category)
	require.Len(t, verdict.Reasoning, 1)
	assert.Equal(t, "No significant threat indicators detected", verdict.Reasoning[0])
}

func TestEvaluateThresholdBoundaries(t *testing.T) {
	engine := NewEngine(nil, nil, zap.NewNop())

	// Unknown domain alone scores exactly 0.10
	msg := &core.NormalizedMessage{
		MessageID:    "edge-1",
		SenderDomain: "random.example",
		Subject:      "hello",
	}

	verdict := engine.Evaluate(msg, nil, core.Settings{HighThreshold: 0.5, LowThreshold: 0.10})
	assert.Equal(t, core.CategoryLowMalicious, verdict.Category, "score equal to threshold must classify at that level")

	verdict = engine.Evaluate(msg, nil, core.Settings{HighThreshold: 0.10, LowThreshold: 0.05})
	assert.Equal(t, core.CategoryHighMalicious, verdict.Category)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine([]string{"company.com"}, []string{"paypal.com", "amazon.com"}, zap.NewNop())

	msg := &core.NormalizedMessage{
		MessageID:    "det-1",
		SenderDomain: "amaz0n.com",
		Subject:      "Urgent action required: your package",
		BodyText:     "Final notice, act now. http://203.0.113.5/track.exe",
		URLs:         []string{"http://203.0.113.5/track.exe"},
		IPs:          []string{"203.0.113.5"},
	}

	first := engine.Evaluate(msg, nil, testSettings())
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(msg, nil, testSettings())
		assert.Equal(t, first, again)
	}
}

func TestScoreClampsToOne(t *testing.T) {
	engine := NewEngine(nil, []string{"paypal.com"}, zap.NewNop())

	msg := &core.NormalizedMessage{
		MessageID:    "clamp-1",
		SenderDomain: "paypa1.com",
		Subject:      "Urgent action required: verify your account within 24 hours",
		BodyText: "Your account has been suspended. Wire transfer required. " +
			"Confirm your identity, final notice, act now. http://evil.test/payload.exe",
		URLs:  []string{"http://evil.test/payload.exe"},
		IPs:   []string{"198.51.100.7"},
		Links: []core.Link{{Href: "http://evil.test/login", Text: "paypal.com"}},
	}

	score, reasons := engine.Score(msg)
	assert.Equal(t, 1.0, score)
	assert.NotEmpty(t, reasons)
}

func TestEvaluateRuleOverridesCategoryKeepsScore(t *testing.T) {
	engine := NewEngine([]string{"partner.com"}, nil, zap.NewNop())

	msg := &core.NormalizedMessage{
		MessageID:    "rule-1",
		SenderDomain: "partner.com",
		Subject:      "Routine newsletter",
		BodyText:     "Nothing suspicious here.",
	}
	rules := []core.CustomRule{{
		ID:            "r1",
		Type:          core.RuleDomain,
		Value:         "partner.com",
		ForceCategory: core.CategoryHighMalicious,
		Active:        true,
		CreatedAt:     time.Now(),
	}}

	verdict := engine.Evaluate(msg, rules, testSettings())

	assert.Equal(t, core.CategoryHighMalicious, verdict.Category)
	assert.Equal(t, 0.0, verdict.RawScore, "raw score stays untouched by rule overrides")
	require.NotEmpty(t, verdict.Reasoning)
	assert.Contains(t, verdict.Reasoning[0], "Force-classified by custom domain rule")
}

func TestLinkMismatchDetector(t *testing.T) {
	d := &linkMismatchDetector{}

	msg := &core.NormalizedMessage{
		Links: []core.Link{{Href: "http://evil.test/login", Text: "Visit bank.com now"}},
	}
	sig := d.Detect(msg)
	require.NotNil(t, sig)
	assert.Equal(t, 0.20, sig.Score)

	// Subdomain of the shown domain is not a mismatch
	msg = &core.NormalizedMessage{
		Links: []core.Link{{Href: "https://www.bank.com/login", Text: "bank.com"}},
	}
	assert.Nil(t, d.Detect(msg))
}

func TestRiskyLinkDetector(t *testing.T) {
	d := &riskyLinkDetector{extensions: defaultRiskyExtensions}

	msg := &core.NormalizedMessage{URLs: []string{"https://cdn.example/invoice.zip"}}
	sig := d.Detect(msg)
	require.NotNil(t, sig)
	assert.Equal(t, 0.25, sig.Score)

	msg = &core.NormalizedMessage{URLs: []string{"https://cdn.example/invoice.pdf"}}
	assert.Nil(t, d.Detect(msg))
}

func TestKeywordDetectorHighBeatsLow(t *testing.T) {
	d := &keywordDetector{high: defaultHighKeywords, low: defaultLowKeywords}

	// Both a high and a low keyword present; only the high tier scores
	msg := &core.NormalizedMessage{
		Subject:  "Invoice attached",
		BodyText: "Please verify your account today.",
	}
	sig := d.Detect(msg)
	require.NotNil(t, sig)
	assert.Equal(t, 0.15, sig.Score)

	msg = &core.NormalizedMessage{Subject: "Invoice attached"}
	sig = d.Detect(msg)
	require.NotNil(t, sig)
	assert.Equal(t, 0.08, sig.Score)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("paypal", "paypal"))
	assert.Equal(t, 1, editDistance("paypa1", "paypal"))
	assert.Equal(t, 1, editDistance("paypal.co", "paypal.com"))
	assert.Equal(t, 3, editDistance("kitten", "sitting"))
	assert.Equal(t, 6, editDistance("", "paypal"))
}

func TestFoldDomain(t *testing.T) {
	assert.Equal(t, "paypal", foldDomain("paypa1"))
	assert.Equal(t, "paypal", foldDomain("p4yp4l"))
	assert.Equal(t, "google", foldDomain("g00gle"))
	assert.Equal(t, "paypal", foldDomain("pàypal"))
	assert.Equal(t, "example", foldDomain("EXAMPLE"))
}

func TestDomainSpoofDetectorIgnoresExactBrand(t *testing.T) {
	d := &domainSpoofDetector{brands: []string{"paypal.com"}}

	assert.Nil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "paypal.com"}))
	assert.Nil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "mail.paypal.com"}))
	assert.NotNil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "paypa1.com"}))
	assert.NotNil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "secure-paypa1.com"}))
	assert.NotNil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "paypal.com.evil.com"}))
	assert.Nil(t, d.Detect(&core.NormalizedMessage{SenderDomain: "unrelated.org"}))
}

func TestAllowlistSuffixMatch(t *testing.T) {
	allow := NewAllowlist([]string{"company.com"}, zap.NewNop())

	assert.True(t, allow.Contains("company.com"))
	assert.True(t, allow.Contains("mail.company.com"))
	assert.False(t, allow.Contains("notcompany.com"))
	assert.False(t, allow.Contains(""))
}
