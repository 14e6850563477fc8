package store

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// NewMySQLStore opens a MySQL-backed store. The DSN must enable
// parseTime so DATETIME columns scan into time.Time.
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	logger.Info("Connected to mysql store")
	return newSQLStore(db, dialectMySQL, logger)
}
