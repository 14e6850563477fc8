package factory

import (
	"fmt"

	"github.com/phishdefender/phishdefender/internal/adapters/store"
	"github.com/phishdefender/phishdefender/internal/config"
	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

// NewStore creates a store based on configuration
func NewStore(cfg *config.Config, logger *zap.Logger) (core.Store, error) {
	storeType := cfg.GetString("store.type")
	switch storeType {
	case "memory":
		return store.NewMemoryStore(logger), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.GetString("store.sqlite_path"), logger)
	case "mysql":
		return store.NewMySQLStore(cfg.GetString("store.mysql_dsn"), logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
