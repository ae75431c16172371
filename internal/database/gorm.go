package database

import (
	"fmt"
	"log"

	"whatsapp-commerce/internal/config"
	"whatsapp-commerce/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init opens the database (PostgreSQL when DB_HOST is set, SQLite otherwise)
// and runs auto-migration.
func Init(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(cfg.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database initialized (contacts, leads, orders, payment_events, campaigns, settings)")
	return db, nil
}

// Migrate runs auto-migration for all models. Exposed so tests can set up
// throwaway databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Contact{},
		&models.Lead{},
		&models.Order{},
		&models.PaymentEvent{},
		&models.Campaign{},
		&models.Setting{},
	)
}
