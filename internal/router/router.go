// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/handlers"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/middleware"
)

// Options configure the middleware around the handlers.
type Options struct {
	AllowedOrigins []string
	AdminAPIKey    string // Admin routes are not registered when empty
}

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// --- Public Routes ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET("/api/docs", h.ServeSwaggerUI)
	r.GET("/api/docs/openapi.yaml", h.ServeOpenAPISpec)

	// LINE authenticates itself with X-Line-Signature, checked in the handler
	r.POST("/webhooks/line", h.LineWebhook)

	// Google redirects the user's browser here after consent
	r.GET("/oauth2callback", h.OAuthCallback)

	// --- Admin Routes ---
	if opts.AdminAPIKey != "" {
		admin := r.Group("/api/v1/admin")
		admin.Use(middleware.AdminAuth(opts.AdminAPIKey))
		{
			admin.GET("/users/:user_id/forms", h.ListUserForms)
			admin.DELETE("/users/:user_id/token", h.RevokeUserToken)
		}
	}

	return r
}
