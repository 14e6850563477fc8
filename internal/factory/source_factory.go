package factory

import (
	"fmt"

	"github.com/phishdefender/phishdefender/internal/adapters/graph"
	"github.com/phishdefender/phishdefender/internal/config"
	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

// NewMailSource creates a mail source based on configuration
func NewMailSource(cfg *config.Config, logger *zap.Logger) (core.MailSource, error) {
	sourceType := cfg.GetString("source.type")
	switch sourceType {
	case "graph":
		gc := cfg.GetGraph()
		if gc.TenantID == "" || gc.ClientID == "" || gc.ClientSecret == "" {
			return nil, fmt.Errorf("graph source requires tenant_id, client_id and client_secret")
		}
		return graph.NewClient(gc.TenantID, gc.ClientID, gc.ClientSecret, gc.BaseURL, gc.PageSize, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail source type: %s", sourceType)
	}
}
