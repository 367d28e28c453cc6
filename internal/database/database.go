package database

import (
	"fmt"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates missing tables and seeds the item catalog from the
// config. Existing rows are kept: debt and portfolio state must survive
// restarts.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(
		&models.Item{},
		&models.Instant{},
		&models.PortfolioEntry{},
		&models.WorthSnapshot{},
		&models.DebtEntry{},
		&models.Trade{},
		&models.LimitOrder{},
		&models.CPISnapshot{},
		&models.DayFlow{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Populate the item catalog from the config
	for _, entry := range cfg.Market.Items {
		taxRate := entry.TaxRate
		if taxRate == 0 {
			taxRate = cfg.Market.DefaultTaxRate
		}
		item := models.Item{
			Identifier:   entry.Identifier,
			Price:        entry.InitialPrice,
			InitialPrice: entry.InitialPrice,
			LifetimeLow:  entry.InitialPrice,
			LifetimeHigh: entry.InitialPrice,
			Stock:        entry.Stock,
			TaxRate:      taxRate,
		}
		if err := db.FirstOrCreate(&item, models.Item{Identifier: entry.Identifier}).Error; err != nil {
			return fmt.Errorf("failed to populate item '%s': %w", entry.Identifier, err)
		}
	}

	return nil
}
