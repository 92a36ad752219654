package main

import (
	"coin_ledger/internal/config" // Configuration
	"coin_ledger/internal/db"     // Database connection and schema

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for migration
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	conn, err := db.Open(cfg) // mysql or postgres, per DB_DRIVER
	if err != nil {
		logrus.Fatal(err)
	}
	defer db.Close(conn)

	if err := db.Migrate(conn); err != nil {
		logrus.Fatal(err)
	}
}
