package api

import (
	"net/http" // HTTP status codes

	"coin_ledger/internal/jobs"       // Batch job runner
	"coin_ledger/internal/middleware" // Auth middleware
	"coin_ledger/internal/money"      // Money service
	"coin_ledger/internal/store"      // Profile persistence

	"github.com/gin-contrib/cors"                             // CORS for the reader web app
	"github.com/gin-contrib/gzip"                             // Compression of admin listings
	"github.com/gin-contrib/secure"                           // Security headers
	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics endpoint
)

// Deps are what the HTTP surface is built from
type Deps struct {
	Store       store.Store
	Money       *money.Service
	Jobs        *jobs.Runner
	JWTSecret   string
	CORSOrigins []string
	IsProd      bool
}

// CorsConfig allows the reader web app to call the API with a bearer token
func CorsConfig(origins []string) cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowOrigins = origins
	corsConf.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConf.MaxAge = 1 * 3600 // 1 hour
	return corsConf
}

// NewRouter wires every route onto a fresh gin engine
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger())
	r.Use(cors.New(CorsConfig(d.CORSOrigins)))
	r.Use(secure.New(secure.Config{
		STSSeconds:           31536000, // 1 year
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		IsDevelopment:        !d.IsProd, // No STS outside production
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes
	r.POST("/user", RegisterHandler(d.Store))                 // Registration endpoint
	r.POST("/user/login", LoginHandler(d.Store, d.JWTSecret)) // Login endpoint

	moneyGroup := r.Group("/v1/money")
	moneyGroup.POST("/webhook", WebhookHandler(d.Money)) // Signed by the processor, no JWT

	// Profile routes (protected by JWT)
	profileGroup := moneyGroup.Group("")
	profileGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.ProfileOnly())
	profileGroup.POST("/deposit-coin-session", DepositCoinSessionHandler(d.Money))
	profileGroup.POST("/payout-account-create", PayoutAccountCreateHandler(d.Money))
	profileGroup.POST("/unlink-stripe-account", UnlinkStripeAccountHandler(d.Money))
	profileGroup.GET("/wallet", GetWalletHandler(d.Money))
	profileGroup.GET("/transactions", GetTransactionHistoryHandler(d.Money))
	profileGroup.GET("/recent-income-amount", RecentIncomeHandler(d.Money))
	profileGroup.POST("/purchase-episode", PurchaseEpisodeHandler(d.Money))
	profileGroup.POST("/tip", TipHandler(d.Money))

	// Batch job triggers (scheduler token only)
	schedulerGroup := moneyGroup.Group("")
	schedulerGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.SchedulerOnly())
	schedulerGroup.POST("/payout", PayoutHandler(d.Jobs))
	schedulerGroup.POST("/move-monthly-to-payout", MoveMonthlyToPayoutHandler(d.Jobs))
	schedulerGroup.POST("/reconcile-payouts", ReconcilePayoutsHandler(d.Jobs))

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.Store), gzip.Gzip(gzip.DefaultCompression))
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Money)) // List transactions endpoint
	adminGroup.GET("/ledger/audit", LedgerAuditHandler(d.Money))      // Conservation check

	return r
}
