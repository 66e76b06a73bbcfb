// Package middleware provides HTTP middleware for the API.
//
// Go Pattern: Middleware in Go is a function that wraps an HTTP handler.
// In Gin, middleware is a gin.HandlerFunc that calls c.Next() to continue
// the chain, or c.Abort() to stop processing.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// AdminAuth returns middleware that requires X-API-Key to match adminKey.
//
// How it works:
// 1. Read the X-API-Key header
// 2. Hash it and the configured key
// 3. Compare the hashes in constant time
// 4. If they differ, return 401 Unauthorized
func AdminAuth(adminKey string) gin.HandlerFunc {
	want := HashAPIKey(adminKey)
	return func(c *gin.Context) {
		rawKey := c.GetHeader("X-API-Key")
		if rawKey == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing X-API-Key header",
				Code:    http.StatusUnauthorized,
			})
			c.Abort() // Stop the middleware chain, the handler never runs
			return
		}

		if subtle.ConstantTimeCompare([]byte(HashAPIKey(rawKey)), []byte(want)) != 1 {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid API key",
				Code:    http.StatusUnauthorized,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// HashAPIKey creates a SHA-256 hash of an API key. Hashing first gives the
// constant-time comparison two inputs of equal length.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}
