package main

import (
	"context" // Startup context for Redis ping

	"coin_ledger/internal/api"    // HTTP handlers and router
	"coin_ledger/internal/app"    // Service wiring
	"coin_ledger/internal/config" // Configuration

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	app.SetupLogging(cfg) // Setup logger

	// Connect to the database and Redis, build the services
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(api.Deps{
		Store:       a.Store,
		Money:       a.Money,
		Jobs:        a.Jobs,
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		IsProd:      cfg.IsProd,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
	if err := r.Run(":" + cfg.AppPort); err != nil {             // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}
