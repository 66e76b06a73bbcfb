package line

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// Event is one message the bot acts on. Exactly one field is set.
type Event struct {
	Audio *models.AudioEvent
	Text  *models.TextEvent
}

// ParseWebhook verifies X-Line-Signature and extracts audio and text
// messages in delivery order. Other event types are skipped.
func ParseWebhook(channelSecret string, r *http.Request) ([]Event, error) {
	cb, err := webhook.ParseRequest(channelSecret, r)
	if errors.Is(err, webhook.ErrInvalidSignature) {
		return nil, apperr.New(apperr.ErrSignature, "invalid X-Line-Signature", nil)
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, e := range cb.Events {
		msg, ok := e.(webhook.MessageEvent)
		if !ok {
			continue
		}
		userID := sourceUser(msg.Source)
		if userID == "" {
			continue
		}

		switch m := msg.Message.(type) {
		case webhook.AudioMessageContent:
			events = append(events, Event{Audio: &models.AudioEvent{
				ReplyToken: msg.ReplyToken,
				UserID:     userID,
				MessageID:  m.Id,
				ReceivedAt: time.UnixMilli(msg.Timestamp),
			}})
		case webhook.TextMessageContent:
			events = append(events, Event{Text: &models.TextEvent{
				ReplyToken: msg.ReplyToken,
				UserID:     userID,
				Text:       strings.TrimSpace(m.Text),
			}})
		}
	}
	return events, nil
}

func sourceUser(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
