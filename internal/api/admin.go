package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Date filters

	"coin_ledger/internal/domain" // Importing domain models
	"coin_ledger/internal/money"  // Money service
	"coin_ledger/internal/store"  // Transaction filters

	"github.com/gin-gonic/gin" // Gin web framework
)

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date read as
// an upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil || !endOfDay {
		return t, err
	}
	return t.AddDate(0, 0, 1).Add(-time.Microsecond), nil // Last instant the databases can store
}

// ListTransactionsHandler returns all transactions, with optional filtering by profile, type, or date
func ListTransactionsHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := queryInt(c, "page", 1, 1, 1<<20) // Page number
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
			return
		}
		pageSize, ok := queryInt(c, "page_size", 20, 1, 100) // Page size
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be between 1 and 100"})
			return
		}
		f := store.TransactionFilter{
			Type:   domain.TransactionType(c.Query("type")), // Filter by transaction type
			Limit:  pageSize,
			Offset: (page - 1) * pageSize, // Calculate offset for pagination
		}
		if raw := c.Query("profile_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid profile_id"})
				return
			}
			f.ProfileID = uint(id) // Filter by sender or recipient
		}
		if raw := c.Query("from"); raw != "" {
			t, err := parseTime(raw, false)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
				return
			}
			f.Since = t // Filter by start date
		}
		if raw := c.Query("to"); raw != "" {
			t, err := parseTime(raw, true)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
				return
			}
			f.Until = t // Filter by end date
		}

		result, err := svc.ListAll(c.Request.Context(), f)
		if err != nil {
			writeLedgerError(c, "admin_list_transactions", err)
			return
		}
		totalPages := (int(result.Count) + pageSize - 1) / pageSize // Calculate total pages
		c.JSON(http.StatusOK, gin.H{
			"transactions": result.Items, // List of transactions
			"page":         page,         // Current page
			"page_size":    pageSize,     // Page size
			"total":        result.Count, // Total number of transactions
			"total_pages":  totalPages,   // Total pages
		})
	}
}

// LedgerAuditHandler reports whether every deposited coin is accounted for
func LedgerAuditHandler(svc *money.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		totals, err := svc.Audit(c.Request.Context())
		if err != nil {
			writeLedgerError(c, "ledger_audit", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"totals":   totals,            // Ledger-wide sums
			"balanced": totals.Balanced(), // Deposits == held + pending + withdrawn
		})
	}
}
