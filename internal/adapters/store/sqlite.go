package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// NewSQLiteStore opens (or creates) a SQLite-backed store at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn
	db.SetMaxOpenConns(1)

	logger.Info("Opened sqlite store", zap.String("path", path))
	return newSQLStore(db, dialectSQLite, logger)
}
