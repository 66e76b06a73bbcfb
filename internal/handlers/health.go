package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:      "ok",
		Version:     h.Version,
		Store:       h.Store.Kind(),
		Workers:     h.Queue.WorkerCount(),
		QueueSize:   h.Queue.QueueSize(),
		PendingAuth: h.Auth.PendingCount(),
	}

	ctx := c.Request.Context()

	// Only the postgres store has a connection worth reporting
	if resp.Store != "memory" {
		resp.Database = "healthy"
		if err := h.Store.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unhealthy: " + err.Error()
		}
	}

	if resp.Status == "ok" {
		n, err := h.Store.CountUsers(ctx)
		if err != nil {
			h.Logger.Warn("could not count authorized users", "error", err)
		}
		resp.AuthorizedUsers = n
	}

	c.JSON(http.StatusOK, resp)
}
