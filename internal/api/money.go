package api

import (
	"errors"   // Error inspection
	"io"       // Reading webhook bodies
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"coin_ledger/internal/domain"     // Importing domain models
	"coin_ledger/internal/gateway"    // Webhook errors
	"coin_ledger/internal/middleware" // Authenticated profile
	"coin_ledger/internal/money"      // Money service

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

const maxWebhookBytes = 64 << 10 // Processor events are a few KB

// DepositRequest asks for a coin checkout page
type DepositRequest struct {
	CurrentPath string `json:"current_path" binding:"required"` // Where the reader returns to
	Coins       int64  `json:"coins" binding:"required"`        // Coins to buy
}

// DepositCoinSessionHandler creates a checkout session for buying coins
func DepositCoinSessionHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DepositRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		session, err := svc.CreateDepositSession(c.Request.Context(), middleware.ProfileID(c), req.Coins, req.CurrentPath)
		if err != nil {
			if errors.Is(err, domain.ErrBelowMinimumPurchase) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid purchase amount"})
				return
			}
			writeLedgerError(c, "deposit_coin_session", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"checkout_session_url": session.URL})
	}
}

// WebhookHandler receives payment processor events. Non-2xx answers make the
// processor redeliver.
func WebhookHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		err = svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		if errors.Is(err, gateway.ErrInvalidWebhook) {
			logrus.WithError(err).Warn("Webhook rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
			return
		}
		if err != nil {
			// Already logged with the event context
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// PayoutAccountRequest carries the onboarding redirect targets
type PayoutAccountRequest struct {
	RefreshURL string `json:"refresh_url" binding:"required,url"` // Link expired or reused
	ReturnURL  string `json:"return_url" binding:"required,url"`  // Onboarding finished
}

// PayoutAccountCreateHandler creates the creator's payout account on first
// use and returns an onboarding link
func PayoutAccountCreateHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayoutAccountRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		url, err := svc.SetupPayoutAccount(c.Request.Context(), middleware.ProfileID(c), req.RefreshURL, req.ReturnURL)
		if err != nil {
			writeLedgerError(c, "payout_account_create", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"onboard_url": url})
	}
}

// UnlinkStripeAccountHandler forgets the creator's payout account
func UnlinkStripeAccountHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.UnlinkPayoutAccount(c.Request.Context(), middleware.ProfileID(c)); err != nil {
			writeLedgerError(c, "unlink_stripe_account", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Payout account unlinked"})
	}
}

// GetWalletHandler returns the caller's wallet, creating it if needed
func GetWalletHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, cached, err := svc.Wallet(c.Request.Context(), middleware.ProfileID(c))
		if err != nil {
			writeLedgerError(c, "get_wallet", err)
			return
		}
		c.JSON(http.StatusOK, struct {
			*money.WalletOverview
			Cached bool `json:"cached"` // Indicate response is from cache
		}{overview, cached})
	}
}

// queryInt parses an optional integer query parameter within [lo, hi]
func queryInt(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true // Use the default
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, false // Out of range
	}
	return v, true
}

// GetTransactionHistoryHandler lists the caller's transactions, newest first
func GetTransactionHistoryHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := queryInt(c, "limit", 20, 1, 100) // Page size
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		offset, ok := queryInt(c, "offset", 0, 0, 1<<30) // Entries to skip
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must not be negative"})
			return
		}
		typ := domain.TransactionType(c.Query("type")) // Optional type filter
		page, err := svc.Transactions(c.Request.Context(), middleware.ProfileID(c), typ, limit, offset)
		if err != nil {
			writeLedgerError(c, "get_transactions", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"items":  page.Items, // Entries of this page
			"count":  page.Count, // Entries across all pages
			"limit":  limit,      // Page size
			"offset": offset,     // Entries skipped
		})
	}
}

// RecentIncomeHandler sums the caller's purchase income over the last days
func RecentIncomeHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, ok := queryInt(c, "days", 0, 0, 3660)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 0 and 3660"})
			return
		}
		income, err := svc.RecentIncome(c.Request.Context(), middleware.ProfileID(c), days)
		if err != nil {
			writeLedgerError(c, "recent_income", err)
			return
		}
		c.JSON(http.StatusOK, income)
	}
}

// PurchaseEpisodeRequest names the episode to buy
type PurchaseEpisodeRequest struct {
	EpisodeID uint `json:"episode_id" binding:"required"` // Episode to buy
}

// PurchaseEpisodeHandler buys access to an episode with coins
func PurchaseEpisodeHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PurchaseEpisodeRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := svc.PurchaseEpisode(c.Request.Context(), middleware.ProfileID(c), req.EpisodeID); err != nil {
			writeLedgerError(c, "purchase_episode", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Episode purchased"})
	}
}

// TipRequest sends coins to a profile directly or to an episode's owner
type TipRequest struct {
	ProfileID *uint  `json:"profile_id"`                // Recipient profile
	EpisodeID *uint  `json:"episode_id"`                // Or the episode whose owner receives
	Amount    *int64 `json:"amount" binding:"required"` // Coins to send
}

// TipHandler sends coins from the caller to a creator
func TipHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TipRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		target := money.TipTarget{ProfileID: req.ProfileID, EpisodeID: req.EpisodeID}
		if err := svc.Tip(c.Request.Context(), middleware.ProfileID(c), target, *req.Amount); err != nil {
			writeLedgerError(c, "tip", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Tip sent"})
	}
}
