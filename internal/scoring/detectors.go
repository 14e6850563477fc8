package scoring

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/phishdefender/phishdefender/internal/core"
)

// Signal is one detector's weighted contribution to the raw score,
// with a human-readable reasoning line.
type Signal struct {
	Score  float64
	Reason string
}

// Detector inspects a normalized message for one class of threat.
// Implementations must be pure: identical input always yields an
// identical signal.
type Detector interface {
	Name() string
	Detect(msg *core.NormalizedMessage) *Signal
}

// Default phishing keyword lists, lifted from the triage team's runbook.
var (
	defaultHighKeywords = []string{
		"verify your account", "urgent action required", "password expired",
		"wire transfer", "confirm your identity", "your account has been suspended",
		"your account has been compromised", "click here immediately",
		"login to restore", "account verification required",
		"we detected unusual activity",
	}
	defaultLowKeywords = []string{
		"invoice attached", "delivery failed", "your package", "sign the document",
		"subscription renewal", "limited time offer", "you have been selected",
	}
	defaultUrgencyPhrases = []string{
		"within 24 hours", "within 48 hours", "account suspended",
		"account will be closed", "final notice", "expires today", "act now",
		"failure to comply", "immediate action",
	}
	defaultRiskyExtensions = []string{
		".exe", ".scr", ".bat", ".cmd", ".msi", ".js", ".jar", ".vbs",
		".ps1", ".hta", ".iso", ".zip", ".rar", ".7z",
	}
)

var domainTokenRE = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)+\b`)

// keywordDetector matches known phishing phrases in subject and body.
type keywordDetector struct {
	high []string
	low  []string
}

func (d *keywordDetector) Name() string { return "keyword" }

func (d *keywordDetector) Detect(msg *core.NormalizedMessage) *Signal {
	text := strings.ToLower(msg.Subject + " " + msg.BodyText)

	var matched []string
	for _, kw := range d.high {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) > 0 {
		return &Signal{
			Score:  minF(0.15*float64(len(matched)), 0.45),
			Reason: fmt.Sprintf("High-risk keywords detected: %s", strings.Join(firstN(matched, 3), ", ")),
		}
	}

	for _, kw := range d.low {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	if len(matched) > 0 {
		return &Signal{
			Score:  minF(0.08*float64(len(matched)), 0.24),
			Reason: fmt.Sprintf("Moderate-risk keywords detected: %s", strings.Join(firstN(matched, 3), ", ")),
		}
	}
	return nil
}

// domainSpoofDetector flags sender domains visually close to a protected
// brand domain without being an exact match.
type domainSpoofDetector struct {
	brands []string
}

func (d *domainSpoofDetector) Name() string { return "domain_spoof" }

func (d *domainSpoofDetector) Detect(msg *core.NormalizedMessage) *Signal {
	domain := strings.ToLower(msg.SenderDomain)
	if domain == "" {
		return nil
	}
	labels := strings.FieldsFunc(domain, func(r rune) bool {
		return r == '.' || r == '-'
	})

	for _, brand := range d.brands {
		brand = strings.ToLower(brand)
		// The brand itself and its real subdomains are not spoofs
		if domain == brand || strings.HasSuffix(domain, "."+brand) {
			continue
		}
		base := brand
		if i := strings.Index(brand, "."); i > 0 {
			base = brand[:i]
		}

		// Whole-domain near miss: paypal.co vs paypal.com
		if dist := editDistance(domain, brand); dist > 0 && dist <= 1 {
			return d.signal(msg.SenderDomain, brand)
		}

		// Label-level look-alikes: paypa1.com, secure-paypa1.com,
		// paypal.com.evil.com
		for _, label := range labels {
			if foldDomain(label) == base || editDistance(label, base) == 1 {
				return d.signal(msg.SenderDomain, brand)
			}
		}
	}
	return nil
}

func (d *domainSpoofDetector) signal(domain, brand string) *Signal {
	return &Signal{
		Score:  0.35,
		Reason: fmt.Sprintf("Sender domain %q resembles protected domain %q (possible spoof)", domain, brand),
	}
}

// linkMismatchDetector flags anchors whose display text names one domain
// while the href targets another.
type linkMismatchDetector struct{}

func (d *linkMismatchDetector) Name() string { return "link_mismatch" }

func (d *linkMismatchDetector) Detect(msg *core.NormalizedMessage) *Signal {
	for _, link := range msg.Links {
		shown := strings.ToLower(domainTokenRE.FindString(link.Text))
		if shown == "" {
			continue
		}
		target, err := url.Parse(link.Href)
		if err != nil || target.Hostname() == "" {
			continue
		}
		host := strings.ToLower(target.Hostname())
		if shown == host || strings.HasSuffix(host, "."+shown) || strings.HasSuffix(shown, "."+host) {
			continue
		}
		return &Signal{
			Score:  0.20,
			Reason: fmt.Sprintf("Link text references %q but targets %q", shown, host),
		}
	}
	return nil
}

// urgencyDetector matches threat/urgency language.
type urgencyDetector struct {
	phrases []string
}

func (d *urgencyDetector) Name() string { return "urgency" }

func (d *urgencyDetector) Detect(msg *core.NormalizedMessage) *Signal {
	text := strings.ToLower(msg.Subject + " " + msg.BodyText)
	var matched []string
	for _, phrase := range d.phrases {
		if strings.Contains(text, phrase) {
			matched = append(matched, phrase)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return &Signal{
		Score:  0.20,
		Reason: fmt.Sprintf("Urgency language detected: %s", strings.Join(firstN(matched, 3), ", ")),
	}
}

// unknownDomainDetector flags senders outside the known-domain allowlist.
type unknownDomainDetector struct {
	allow *Allowlist
}

func (d *unknownDomainDetector) Name() string { return "unknown_domain" }

func (d *unknownDomainDetector) Detect(msg *core.NormalizedMessage) *Signal {
	if d.allow.Contains(msg.SenderDomain) {
		return nil
	}
	domain := msg.SenderDomain
	if domain == "" {
		domain = "(none)"
	}
	return &Signal{
		Score:  0.10,
		Reason: fmt.Sprintf("Sender domain %s is not a known domain", domain),
	}
}

// riskyLinkDetector flags links to executable or high-risk file types.
type riskyLinkDetector struct {
	extensions []string
}

func (d *riskyLinkDetector) Name() string { return "risky_link" }

func (d *riskyLinkDetector) Detect(msg *core.NormalizedMessage) *Signal {
	for _, raw := range msg.URLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		ext := strings.ToLower(path.Ext(parsed.Path))
		if ext == "" {
			continue
		}
		for _, risky := range d.extensions {
			if ext == risky {
				return &Signal{
					Score:  0.25,
					Reason: fmt.Sprintf("Link targets high-risk file type %s: %s", ext, raw),
				}
			}
		}
	}
	return nil
}

// ipLiteralDetector flags raw IPv4 literals in headers or body, unusual
// for legitimate mail.
type ipLiteralDetector struct{}

func (d *ipLiteralDetector) Name() string { return "ip_literal" }

func (d *ipLiteralDetector) Detect(msg *core.NormalizedMessage) *Signal {
	if len(msg.IPs) == 0 {
		return nil
	}
	return &Signal{
		Score:  0.10,
		Reason: fmt.Sprintf("Raw IP addresses found in message: %s", strings.Join(firstN(msg.IPs, 3), ", ")),
	}
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
