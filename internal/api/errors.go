package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"coin_ledger/internal/domain"     // Ledger errors
	"coin_ledger/internal/gateway"    // Gateway errors
	"coin_ledger/internal/jobs"       // Job errors
	"coin_ledger/internal/middleware" // Authenticated profile
	"coin_ledger/internal/money"      // Request errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Errors a client can fix by changing the request
var badRequest = []error{
	domain.ErrNegativeAmount,
	domain.ErrOverMaximumAmount,
	domain.ErrNotEnoughBalance,
	domain.ErrSelfTransfer,
	domain.ErrAlreadyPurchased,
	domain.ErrEpisodeNotPurchasable,
	domain.ErrBelowMinimumPurchase,
	domain.ErrNonPositivePayout,
	gateway.ErrInvalidWebhook,
	money.ErrNoTipTarget,
	money.ErrUnknownTransactionType,
}

// Errors for a missing referenced entity
var notFound = []error{
	domain.ErrProfileNotFound,
	domain.ErrEpisodeNotFound,
	domain.ErrWalletNotFound,
}

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeLedgerError maps a service error to its HTTP status. Unexpected errors
// are logged with the operation and hidden from the client.
func writeLedgerError(c *gin.Context, op string, err error) {
	switch {
	case matches(err, badRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()}) // Safe to show
	case matches(err, notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()}) // Safe to show
	case errors.Is(err, jobs.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()}) // Retry later
	default:
		logrus.WithFields(logrus.Fields{
			"operation":  op,                      // Failing operation
			"profile_id": middleware.ProfileID(c), // Caller, 0 for the scheduler
			"path":       c.FullPath(),            // Route
		}).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
