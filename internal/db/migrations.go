package db

import (
	"errors"

	"chipdeck/internal/db/migration"

	"gorm.io/gorm"
)

// SyncSchema creates or updates tables and indexes from the models.
func SyncSchema(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	return db.AutoMigrate(&RenderSnapshot{})
}

// MigrateUp syncs the schema, then runs the data migrations.
func MigrateUp(db *gorm.DB) error {
	if err := SyncSchema(db); err != nil {
		return err
	}
	migration.Init()
	return migration.RunAll(db)
}
