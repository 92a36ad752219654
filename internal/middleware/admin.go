package middleware

import (
	"net/http" // HTTP status codes

	"coin_ledger/internal/domain" // Role constants
	"coin_ledger/internal/store"  // Profile lookup

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware checks the profile's role from the store on each request,
// so a demoted admin loses access before their token expires
func AdminOnlyMiddleware(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		profileID := ProfileID(c) // Get profileID from context
		// Check if profileID exists in context
		if profileID == 0 {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		profile, err := st.GetProfile(c.Request.Context(), profileID) // Fetch profile from store
		if err != nil || profile.Role != domain.RoleAdmin {
			// If missing or not admin, abort with forbidden status
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}
