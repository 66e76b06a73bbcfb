package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// ListUserForms returns the forms a LINE user created, newest first.
// GET /api/v1/admin/users/:user_id/forms?limit=20
func (h *Handler) ListUserForms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.Store.RecentForms(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		h.Logger.Error("failed to list forms", "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list forms",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	// Go Pattern: return [] rather than null for an empty list
	if records == nil {
		records = []models.FormRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"forms": records, "count": len(records)})
}

// RevokeUserToken forgets a user's Google token; their next voice message
// starts a new consent flow.
// DELETE /api/v1/admin/users/:user_id/token
func (h *Handler) RevokeUserToken(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.Store.DeleteToken(c.Request.Context(), userID); err != nil {
		h.Logger.Error("failed to delete token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete token",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	h.Logger.Info("token revoked by admin", "user_id", userID)
	c.Status(http.StatusNoContent)
}
