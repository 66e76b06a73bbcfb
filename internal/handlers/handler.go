// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, String, Status)
// - Middleware data (c.Get/c.Set)
//
// We group related handlers into a struct (Handler) that holds shared
// dependencies. None of the handlers do slow work: webhook events go onto the
// worker queue and the OAuth callback only exchanges a code.
package handlers

import (
	"context"
	"log/slog"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/worker"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/store"
)

// Queue is the worker pool as seen by the webhook handler.
type Queue interface {
	Submit(job worker.Job) error
	WorkerCount() int
	QueueSize() int
}

// Authorizations completes consent flows. The pipeline orchestrator
// implements it.
type Authorizations interface {
	CompleteAuthorization(ctx context.Context, state, code string) (string, error)
	PendingCount() int
}

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Tests build a Handler
// around fakes.
type Handler struct {
	Store         store.Store
	Queue         Queue
	Auth          Authorizations
	ChannelSecret string
	Version       string
	Logger        *slog.Logger
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(st store.Store, q Queue, auth Authorizations, channelSecret, version string, logger *slog.Logger) *Handler {
	return &Handler{
		Store:         st,
		Queue:         q,
		Auth:          auth,
		ChannelSecret: channelSecret,
		Version:       version,
		Logger:        logger,
	}
}
