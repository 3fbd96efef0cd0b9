package db

import (
	"gorm.io/gorm"

	"github.com/clara-platform/clara-backend/internal/domain"
)

func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(domain.AllModels()...)
}
