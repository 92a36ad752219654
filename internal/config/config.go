package config

import (
	"fmt"     // For error wrapping
	"strings" // For DSN assembly

	"github.com/joho/godotenv"             // For loading .env files
	"github.com/kelseyhightower/envconfig" // For mapping env vars onto the struct
)

// Config holds the application configuration
type Config struct {
	AppPort  string `envconfig:"APP_PORT" default:"8080"`    // Application port
	IsProd   bool   `envconfig:"IS_PROD" default:"false"`    // Is production environment
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`   // Logrus level name
	Timezone string `envconfig:"APP_TIMEZONE" default:"UTC"` // Zone the payout calendar runs in

	DBDriver   string `envconfig:"DB_DRIVER" default:"mysql"`     // mysql or postgres
	DBUser     string `envconfig:"DB_USER" default:"root"`        // Database user
	DBPassword string `envconfig:"DB_PASSWORD"`                   // Database password
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`   // Database host
	DBPort     string `envconfig:"DB_PORT" default:"3306"`        // Database port
	DBName     string `envconfig:"DB_NAME" default:"coin_ledger"` // Database name
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`  // Postgres only

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"` // JWT secret key

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"` // Redis server address
	RedisPass string `envconfig:"REDIS_PASS"`                          // Redis password
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`                // Redis database number

	PaymentGateway      string `envconfig:"PAYMENT_GATEWAY" default:"stripe"` // stripe or fake
	StripeAPIKey        string `envconfig:"STRIPE_API_KEY"`                   // Secret API key
	StripeWebhookSecret string `envconfig:"STRIPE_ENDPOINT_SECRET"`           // Webhook signing secret

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"` // Reader web app origins

	RolloverSchedule  string `envconfig:"ROLLOVER_SCHEDULE" default:"0 0 1 * *"`    // Monthly profit -> payout bucket
	PayoutSchedule    string `envconfig:"PAYOUT_SCHEDULE" default:"0 0 8 * *"`      // Payout disbursement
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"0 */6 * * *"` // Retry of payouts with unknown outcome

	Ledger Ledger // Money thresholds, LEDGER_ prefixed
}

// Ledger holds the economic constants of the coin ledger. They are passed to
// the transfer engine and payout scheduler at construction.
type Ledger struct {
	MaxTransferCoins int64   `envconfig:"MAX_TRANSFER_COINS" default:"10000000"` // Sanity ceiling for one transfer
	MinCheckoutCoins int64   `envconfig:"MIN_CHECKOUT_COINS" default:"300"`      // Smallest coin purchase ($3)
	MinPayoutCoins   int64   `envconfig:"MIN_PAYOUT_COINS" default:"300"`        // Smallest payout bucket disbursed
	FeeRateDefault   float64 `envconfig:"FEE_RATE_DEFAULT" default:"0.10"`       // Platform fee for regular creators
	FeeRateHighValue float64 `envconfig:"FEE_RATE_HIGH_VALUE" default:"0.05"`    // Platform fee for HIGH_VALUE creators
}

// DefaultLedger returns the production thresholds
func DefaultLedger() Ledger {
	return Ledger{
		MaxTransferCoins: 10_000_000,
		MinCheckoutCoins: 300,
		MinPayoutCoins:   300,
		FeeRateDefault:   0.10,
		FeeRateHighValue: 0.05,
	}
}

// Validate rejects thresholds that would break the ledger
func (l Ledger) Validate() error {
	if l.MaxTransferCoins <= 0 {
		return fmt.Errorf("LEDGER_MAX_TRANSFER_COINS must be > 0")
	}
	if l.MinCheckoutCoins < 0 || l.MinPayoutCoins < 0 {
		return fmt.Errorf("LEDGER_MIN_CHECKOUT_COINS and LEDGER_MIN_PAYOUT_COINS must be >= 0")
	}
	for name, rate := range map[string]float64{
		"LEDGER_FEE_RATE_DEFAULT":    l.FeeRateDefault,
		"LEDGER_FEE_RATE_HIGH_VALUE": l.FeeRateHighValue,
	} {
		if rate < 0 || rate >= 1 {
			return fmt.Errorf("%s must be in [0, 1)", name)
		}
	}
	return nil
}

// MinJWTSecretLen is the shortest HMAC key accepted for signing tokens
const MinJWTSecretLen = 32

// Validate checks cross-field constraints envconfig can't express
func (c *Config) Validate() error {
	// required:"true" only rejects an unset variable, not JWT_SECRET=
	if len(c.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLen)
	}
	switch c.DBDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", c.DBDriver)
	}
	switch c.PaymentGateway {
	case "stripe":
		if c.StripeAPIKey == "" || c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_API_KEY and STRIPE_ENDPOINT_SECRET are required for the stripe gateway")
		}
	case "fake":
		if c.IsProd {
			return fmt.Errorf("the fake payment gateway cannot run in production")
		}
	default:
		return fmt.Errorf("PAYMENT_GATEWAY must be stripe or fake, got %q", c.PaymentGateway)
	}
	return c.Ledger.Validate()
}

// DatabaseDSN returns the connection string for the configured driver
func (c *Config) DatabaseDSN() string {
	if c.DBDriver == "postgres" {
		parts := []string{
			"host=" + c.DBHost,
			"user=" + c.DBUser,
			"password=" + c.DBPassword,
			"dbname=" + c.DBName,
			"port=" + c.DBPort,
			"sslmode=" + c.DBSSLMode,
			"TimeZone=UTC",
		}
		return strings.Join(parts, " ")
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&loc=UTC"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
