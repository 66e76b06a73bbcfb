package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/line"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/worker"
)

// LineWebhook receives LINE deliveries. It verifies the signature, queues
// every audio and text event and acknowledges at once; processing happens on
// the worker pool.
// POST /webhooks/line
func (h *Handler) LineWebhook(c *gin.Context) {
	events, err := line.ParseWebhook(h.ChannelSecret, c.Request)
	if err != nil {
		if errors.Is(err, apperr.ErrSignature) {
			h.Logger.Warn("rejected webhook with invalid signature", "client_ip", c.ClientIP())
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_signature",
				Message: "X-Line-Signature does not match the request body",
				Code:    http.StatusBadRequest,
			})
			return
		}
		h.Logger.Error("failed to parse webhook", "error", err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Could not parse webhook body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	for _, ev := range events {
		var job worker.Job
		switch {
		case ev.Audio != nil:
			job = worker.AudioJob(*ev.Audio)
		case ev.Text != nil:
			job = worker.TextJob(*ev.Text)
		default:
			continue
		}
		// LINE does not redeliver on our failures, so a full queue drops the event.
		if err := h.Queue.Submit(job); err != nil {
			h.Logger.Error("⚠️ dropped webhook event", "job_type", job.Type, "error", err)
		}
	}

	c.String(http.StatusOK, "OK")
}
