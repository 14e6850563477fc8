package normalize

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/utils"
	"go.uber.org/zap"
)

// Hard caps on extracted indicator sets, matching what the store keeps
// per email.
const (
	maxURLs    = 50
	maxDomains = 50
	maxIPs     = 20
)

var (
	urlRE    = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
	ipRE     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	anchorRE = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']?(https?://[^"'\s>]+)["']?[^>]*>(.*?)</a>`)
	tagRE    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Normalizer turns a raw fetched message into the structured record the
// scoring engine consumes. It never fails: missing or malformed content
// degrades to empty fields.
type Normalizer struct {
	policy *bluemonday.Policy
	text   *utils.TextProcessor
	logger *zap.Logger
}

// New creates a new Normalizer
func New(text *utils.TextProcessor, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		policy: bluemonday.StrictPolicy(),
		text:   text,
		logger: logger,
	}
}

// Normalize builds a NormalizedMessage from a raw message.
func (n *Normalizer) Normalize(msg *core.RawMessage) *core.NormalizedMessage {
	bodyText := msg.BodyText
	if bodyText == "" && msg.BodyHTML != "" {
		bodyText = n.stripHTML(msg.BodyHTML)
	}
	bodyText = n.text.SanitizeUTF8(bodyText)

	rec := &core.NormalizedMessage{
		MessageID:      msg.MessageID,
		MailboxAddress: msg.Mailbox,
		Sender:         msg.Sender,
		SenderDomain:   senderDomain(msg.Sender),
		Recipient:      msg.Recipient,
		Subject:        n.text.SanitizeUTF8(msg.Subject),
		BodyText:       bodyText,
		BodyHTML:       msg.BodyHTML,
		ReceivedAt:     msg.ReceivedAt,
	}

	content := msg.BodyHTML + " " + bodyText

	rec.URLs = capped(dedup(urlRE.FindAllString(content, -1)), maxURLs)
	rec.Domains = capped(hostnames(rec.URLs), maxDomains)
	rec.IPs = capped(dedup(ipRE.FindAllString(content+" "+headerText(msg.Headers), -1)), maxIPs)
	rec.Links = n.extractLinks(msg.BodyHTML)

	n.logger.Debug("Normalized message",
		zap.String("message_id", msg.MessageID),
		zap.String("sender_domain", rec.SenderDomain),
		zap.Int("urls", len(rec.URLs)),
		zap.Int("ips", len(rec.IPs)))

	return rec
}

// stripHTML reduces an HTML body to plain text.
func (n *Normalizer) stripHTML(body string) string {
	stripped := n.policy.Sanitize(body)
	// The strict policy escapes entities in its output
	stripped = html.UnescapeString(stripped)
	return strings.TrimSpace(collapseWhitespace(stripped))
}

// extractLinks returns the anchors of an HTML body as (href, display
// text) pairs for the link-mismatch detector.
func (n *Normalizer) extractLinks(body string) []core.Link {
	if body == "" {
		return nil
	}
	matches := anchorRE.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	links := make([]core.Link, 0, len(matches))
	for _, m := range matches {
		text := html.UnescapeString(tagRE.ReplaceAllString(m[2], ""))
		links = append(links, core.Link{
			Href: m[1],
			Text: strings.TrimSpace(text),
		})
	}
	return links
}

// senderDomain extracts the lower-cased domain of an address.
func senderDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return ""
	}
	domain := sender[at+1:]
	// Tolerate "Name <user@example.com>" forms
	domain = strings.TrimRight(domain, ">")
	return strings.ToLower(strings.TrimSpace(domain))
}

// hostnames extracts case-normalized, port-stripped hosts from URLs.
func hostnames(urls []string) []string {
	hosts := make([]string, 0, len(urls))
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		hosts = append(hosts, strings.ToLower(parsed.Hostname()))
	}
	return dedup(hosts)
}

func headerText(headers map[string][]string) string {
	if len(headers) == 0 {
		return ""
	}
	var b strings.Builder
	for _, values := range headers {
		for _, v := range values {
			b.WriteString(v)
			b.WriteString(" ")
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedup removes duplicates while preserving first-seen order.
func dedup(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func capped(values []string, max int) []string {
	if len(values) > max {
		return values[:max]
	}
	return values
}
