package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation

	"coin_ledger/internal/domain" // Importing domain models
	"coin_ledger/internal/store"  // Profile persistence
	"coin_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
)

// RegisterRequest creates a profile
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`             // Username must be provided
	Password    string `json:"password" binding:"required"`             // Password must be provided
	DisplayName string `json:"display_name" binding:"max=200"`          // Shown next to transactions
	Email       string `json:"email" binding:"omitempty,email,max=320"` // Prefilled on checkout
}

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token string `json:"token"` // JWT token
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`) // Alphabetic characters only

// isValidUsername checks if the username contains only alphabetic characters
func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// isValidPassword checks if the password length is between 8 and 15 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 15 // Return true if length is valid
}

// RegisterHandler creates a profile; its wallet is created on first use
func RegisterHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate username and password
		if !isValidUsername(req.Username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be alphabetic only"})
			return
		}
		if !isValidPassword(req.Password) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-15 characters"})
			return
		}
		// Hash the password
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		username := strings.ToLower(req.Username) // Lowercase to ensure uniqueness
		displayName := req.DisplayName
		if displayName == "" {
			displayName = req.Username // Default to the name as typed
		}
		profile := domain.Profile{
			Username:    username,
			Password:    string(hash),
			DisplayName: displayName,
			Email:       req.Email,
		}
		// Usernames are checked up front; the unique index still guards races
		if _, err := st.GetProfileByUsername(c.Request.Context(), username); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		} else if !errors.Is(err, domain.ErrProfileNotFound) {
			writeLedgerError(c, "register", err)
			return
		}
		if err := st.CreateProfile(c.Request.Context(), &profile); err != nil {
			logrus.WithField("username", username).WithError(err).Warn("Profile creation failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Profile registered successfully", "id": profile.ID})
	}
}

// LoginHandler authenticates a profile and returns a JWT token
func LoginHandler(st store.Store, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		profile, err := st.GetProfileByUsername(c.Request.Context(), strings.ToLower(req.Username))
		if err != nil {
			// Unknown usernames look like bad passwords
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(profile.ID, profile.Role, jwtSecret) // Generate JWT token
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, AuthResponse{Token: token})
	}
}
