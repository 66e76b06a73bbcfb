package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

// callbackPage is shown in the user's browser after Google redirects back.
// Only fixed strings are ever substituted into it.
const callbackPage = `<!DOCTYPE html>
<html lang="zh-Hant">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%[1]s</title>
  <style>
    body { font-family: sans-serif; text-align: center; padding: 48px 16px; color: #333; }
  </style>
</head>
<body>
  <h1>%[1]s</h1>
  <p>%[2]s</p>
</body>
</html>`

// OAuthCallback finishes the Google consent flow.
// GET /oauth2callback?code=...&state=...
//
// Status codes:
//   - 200 authorized; parked voice messages are queued again
//   - 400 missing code, consent denied, or a bad, used or expired state
//   - 502 Google rejected the code
//   - 500 anything else (e.g. the token could not be stored)
func (h *Handler) OAuthCallback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		h.Logger.Info("user declined consent", "reason", reason)
		h.callbackPage(c, http.StatusBadRequest, "授權已取消", "您拒絕了授權。如需建立表單，請重新傳送語音訊息。")
		return
	}

	code := c.Query("code")
	if code == "" {
		h.callbackPage(c, http.StatusBadRequest, "授權失敗", "缺少授權碼。")
		return
	}

	userID, err := h.Auth.CompleteAuthorization(c.Request.Context(), c.Query("state"), code)
	switch {
	case err == nil:
		h.Logger.Info("✅ authorization completed via callback", "user_id", userID)
		h.callbackPage(c, http.StatusOK, "授權成功", "您可以關閉此頁面並回到 LINE。")
	case errors.Is(err, apperr.ErrStateInvalid):
		h.Logger.Warn("callback with invalid state", "error", err, "client_ip", c.ClientIP())
		h.callbackPage(c, http.StatusBadRequest, "授權連結無效", "此授權連結已失效或已使用過，請重新傳送語音訊息。")
	case errors.Is(err, apperr.ErrAuth):
		h.Logger.Error("code exchange failed", "user_id", userID, "error", err)
		h.callbackPage(c, http.StatusBadGateway, "授權失敗", "Google 拒絕了授權碼，請重新傳送語音訊息。")
	default:
		h.Logger.Error("❌ authorization failed", "user_id", userID, "error", err)
		h.callbackPage(c, http.StatusInternalServerError, "發生錯誤", "請稍後再試。")
	}
}

func (h *Handler) callbackPage(c *gin.Context, status int, title, message string) {
	c.Data(status, "text/html; charset=utf-8", fmt.Appendf(nil, callbackPage, title, message))
}
