package scoring

import (
	"strings"

	"go.uber.org/zap"
)

// Allowlist holds the known/internal domains that the unknown-domain
// detector treats as trusted senders.
type Allowlist struct {
	domains []string
	logger  *zap.Logger
}

// NewAllowlist creates a new allowlist checker
func NewAllowlist(domains []string, logger *zap.Logger) *Allowlist {
	// Normalize domains (lowercase)
	normalized := make([]string, len(domains))
	for i, domain := range domains {
		normalized[i] = strings.ToLower(strings.TrimSpace(domain))
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized domain allowlist", zap.Strings("domains", normalized))
	}

	return &Allowlist{
		domains: normalized,
		logger:  logger,
	}
}

// Contains reports whether the domain, or a parent of it, is allowlisted.
func (a *Allowlist) Contains(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	for _, allowed := range a.domains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}
