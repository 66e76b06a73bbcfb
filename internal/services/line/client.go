// Package line adapts the LINE Messaging API SDK to what the bot needs:
// text replies and pushes, voice message downloads, and webhook parsing.
package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Client sends messages and fetches message content.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

// NewClient creates a Client for the channel access token.
func NewClient(channelToken string) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	api, err := messaging_api.NewMessagingApiAPI(channelToken, messaging_api.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken, messaging_api.WithBlobHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE blob client: %w", err)
	}
	return &Client{api: api, blob: blob}, nil
}

// Reply answers a webhook event. Reply tokens are single use and expire
// shortly after the event.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("LINE reply failed: %w", err)
	}
	return nil
}

// Push sends a message to userID without a reply token.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	_, err := c.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	}, "")
	if err != nil {
		return fmt.Errorf("LINE push failed: %w", err)
	}
	return nil
}

// Content streams the binary content of a message. The caller closes it.
func (c *Client) Content(ctx context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("LINE content download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("LINE content download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
