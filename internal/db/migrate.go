package db

import (
	"coin_ledger/internal/domain" // Importing domain models
	"fmt"                         // Error wrapping

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Models lists every table owned by the ledger, parents first
var Models = []any{
	&domain.Profile{},
	&domain.Wallet{},
	&domain.Transaction{},
	&domain.Episode{},
	&domain.EpisodePurchase{},
	&domain.PayoutAttempt{},
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
