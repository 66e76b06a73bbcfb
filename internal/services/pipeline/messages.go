package pipeline

// Texts sent to LINE users.
const (
	msgAuthorize      = "請點擊以下連結進行授權：%s"
	msgAuthorizeAgain = "授權尚未完成，請點擊以下連結進行授權：%s"
	msgAuthorized     = "授權成功！正在處理您的語音訊息。"
	msgAuthFailed     = "授權失敗，請重新傳送語音訊息。"
	msgAuthExpired    = "授權連結已過期，請重新傳送語音訊息。"
	msgFormReady      = "表單「%s」已建立：%s"
	msgNoForms        = "您還沒有建立任何表單。"
	msgRecentForms    = "最近建立的表單："
	msgLoggedOut      = "已登出，下次傳送語音訊息時需要重新授權。"
	msgHelp           = "傳送一段語音，說出表單標題和問題，就會自動建立 Google 表單。\n/forms 查看最近的表單\n/logout 取消授權"
)
