package normalize

import (
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNormalizer() *Normalizer {
	logger := zap.NewNop()
	return New(utils.NewTextProcessor(logger), logger)
}

func TestNormalizeExtractsURLsAndDomains(t *testing.T) {
	n := newTestNormalizer()

	msg := &core.RawMessage{
		MessageID: "m1",
		Sender:    "alice@Example.COM",
		Subject:   "links",
		BodyText:  "see https://evil.test/login and HTTP://evil.test/login and https://other.example:8443/x",
	}

	rec := n.Normalize(msg)

	assert.Equal(t, "example.com", rec.SenderDomain)
	// Case-distinct URLs remain distinct, hostnames are folded and deduped
	assert.Len(t, rec.URLs, 3)
	assert.ElementsMatch(t, []string{"evil.test", "other.example"}, rec.Domains)
}

func TestNormalizeHTMLBodyFallback(t *testing.T) {
	n := newTestNormalizer()

	msg := &core.RawMessage{
		MessageID: "m2",
		Sender:    "bob@corp.example",
		BodyHTML:  "<html><body><p>Verify your <b>account</b> &amp; more</p></body></html>",
	}

	rec := n.Normalize(msg)

	assert.Equal(t, "Verify your account & more", rec.BodyText)
	assert.Equal(t, msg.BodyHTML, rec.BodyHTML)
}

func TestNormalizeExtractsAnchorLinks(t *testing.T) {
	n := newTestNormalizer()

	msg := &core.RawMessage{
		MessageID: "m3",
		Sender:    "x@y.example",
		BodyHTML:  `<p>Click <a href="http://evil.test/l">www.bank.com</a> now</p>`,
	}

	rec := n.Normalize(msg)

	require.Len(t, rec.Links, 1)
	assert.Equal(t, "http://evil.test/l", rec.Links[0].Href)
	assert.Equal(t, "www.bank.com", rec.Links[0].Text)
}

func TestNormalizeExtractsIPsFromHeadersAndBody(t *testing.T) {
	n := newTestNormalizer()

	msg := &core.RawMessage{
		MessageID: "m4",
		Sender:    "x@y.example",
		BodyText:  "connect to 203.0.113.9 now",
		Headers: map[string][]string{
			"Received": {"from mail.example ([198.51.100.4])"},
		},
	}

	rec := n.Normalize(msg)

	assert.ElementsMatch(t, []string{"203.0.113.9", "198.51.100.4"}, rec.IPs)
}

func TestNormalizeCapsIndicatorCounts(t *testing.T) {
	n := newTestNormalizer()

	body := ""
	for i := 0; i < 80; i++ {
		body += "https://evil.test/p" + string(rune('a'+i%26)) + "/" + time.Now().Format("150405") + "-" + string(rune('a'+i/26)) + string(rune('a'+i%26)) + " "
	}
	msg := &core.RawMessage{MessageID: "m5", Sender: "x@y.example", BodyText: body}

	rec := n.Normalize(msg)

	assert.LessOrEqual(t, len(rec.URLs), 50)
	assert.LessOrEqual(t, len(rec.Domains), 50)
}

func TestSenderDomainForms(t *testing.T) {
	assert.Equal(t, "example.com", senderDomain("user@example.com"))
	assert.Equal(t, "example.com", senderDomain("Alice <alice@EXAMPLE.com>"))
	assert.Equal(t, "", senderDomain("no-at-sign"))
	assert.Equal(t, "", senderDomain("trailing@"))
}

func TestNormalizeNeverFailsOnEmptyMessage(t *testing.T) {
	n := newTestNormalizer()

	rec := n.Normalize(&core.RawMessage{MessageID: "m6"})

	assert.Equal(t, "m6", rec.MessageID)
	assert.Empty(t, rec.SenderDomain)
	assert.Empty(t, rec.URLs)
	assert.Empty(t, rec.Links)
}
