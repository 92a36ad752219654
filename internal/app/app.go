// Package app assembles the ledger services from configuration. It is shared
// by the HTTP server and the jobs command.
package app

import (
	"context"
	"fmt"

	"coin_ledger/internal/config"
	"coin_ledger/internal/db"
	"coin_ledger/internal/gateway"
	"coin_ledger/internal/gateway/stripegw"
	"coin_ledger/internal/jobs"
	"coin_ledger/internal/ledger"
	"coin_ledger/internal/money"
	"coin_ledger/internal/payout"
	"coin_ledger/internal/store/gormstore"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the wired services
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Store   *gormstore.Store
	Redis   *redis.Client
	Gateway gateway.Gateway
	Money   *money.Service
	Payout  *payout.Service
	Jobs    *jobs.Runner
}

// SetupLogging applies the configured format and level to the standard logger
func SetupLogging(cfg *config.Config) {
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// New connects to the database and Redis and builds every service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close(conn)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	var gw gateway.Gateway
	switch cfg.PaymentGateway {
	case "fake":
		logrus.Warn("Using the fake payment gateway, no money will move")
		gw = gateway.NewFake(cfg.Ledger.MinCheckoutCoins, cfg.StripeWebhookSecret)
	default:
		gw = stripegw.New(cfg.StripeAPIKey, cfg.StripeWebhookSecret, cfg.Ledger.MinCheckoutCoins)
	}

	st := gormstore.New(conn)
	payouts := payout.NewService(st, gw, cfg.Ledger)
	return &App{
		Config:  cfg,
		DB:      conn,
		Store:   st,
		Redis:   rdb,
		Gateway: gw,
		Money:   money.NewService(st, ledger.New(st, cfg.Ledger), gw, rdb),
		Payout:  payouts,
		Jobs:    jobs.NewRunner(payouts, rdb),
	}, nil
}

// Close releases the Redis client and the database pool
func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		logrus.WithError(err).Error("Error closing Redis client")
	}
	db.Close(a.DB)
}
