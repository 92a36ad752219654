package utils

import (
	"errors" // Error values
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// RoleScheduler is carried by tokens minted for the batch job trigger
const RoleScheduler = "scheduler"

// ErrEmptySecret is returned when signing or verifying with an empty key
var ErrEmptySecret = errors.New("jwt secret is empty")

// JWT Claims
type Claims struct {
	ProfileID            uint   `json:"profile_id"` // Custom claim for profile ID, 0 for the scheduler
	Role                 string `json:"role"`       // Role at issue time
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT creates a 24h JWT token for a given profile
func GenerateJWT(profileID uint, role, secret string) (string, error) {
	return generate(profileID, role, secret, 24*time.Hour)
}

// GenerateSchedulerJWT creates a token for the external job trigger
func GenerateSchedulerJWT(secret string, ttl time.Duration) (string, error) {
	return generate(0, RoleScheduler, secret, ttl)
}

func generate(profileID uint, role, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	// Set token claims
	claims := Claims{
		ProfileID: profileID, // Custom claim for profile ID
		Role:      role,      // Custom claim for role
		// Standard claims
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Token expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a JWT token string
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret // An empty HMAC key verifies anything signed with it
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method") // Reject alg switching
		}
		return []byte(secret), nil // Return the secret key for validation
	})
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil // Return claims if valid
	}
	// Return error if token is invalid
	return nil, jwt.ErrSignatureInvalid
}
