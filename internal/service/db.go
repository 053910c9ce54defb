package service

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(
		&models.LedgerEntry{},
		&models.PostRecord{},
		&models.RateCounter{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// The claim index: at most one pending or succeeded entry per
	// (kind, target, window). Concurrent triggers race on this insert, so a
	// second claim for the same occurrence fails instead of double-posting.
	// AutoMigrate cannot express partial indexes, hence the raw DDL.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_claim
		 ON ledger_entries (action_kind, target_key, window_key)
		 WHERE outcome IN ('pending', 'succeeded')`,
	).Error; err != nil {
		return nil, fmt.Errorf("failed to create claim index: %w", err)
	}

	return db, nil
}
