package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// NewSQLite opens a file-backed (or :memory:) SQLite database. Used for
// single-machine deployments and the test harness; production uses Postgres.
func NewSQLite(logg *logger.Logger, path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}
	logg.With("service", "SQLiteService").Info("SQLite opened", "path", path)
	return gdb, nil
}
