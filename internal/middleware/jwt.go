package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"coin_ledger/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// Context keys set by JWTAuthMiddleware
const (
	ProfileIDKey = "profileID" // uint
	RoleKey      = "role"      // string
)

// JWTAuthMiddleware validates JWT tokens and extracts profile information
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(ProfileIDKey, claims.ProfileID) // Store profileID in context
		c.Set(RoleKey, claims.Role)           // Store role in context
		c.Next()                              // Proceed to the next handler
	}
}

// ProfileOnly rejects scheduler tokens on routes acting for a profile
func ProfileOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, _ := c.Get(ProfileIDKey); id == nil || id.(uint) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// SchedulerOnly lets through tokens minted for the batch job trigger
func SchedulerOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != utils.RoleScheduler {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Scheduler access required"})
			return
		}
		c.Next()
	}
}

// ProfileID returns the authenticated profile, 0 if none
func ProfileID(c *gin.Context) uint {
	id, ok := c.Get(ProfileIDKey)
	if !ok {
		return 0
	}
	v, _ := id.(uint)
	return v
}
