// Package shortener wraps the reurl.cc link shortening API.
package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

// Client shortens URLs. Results are not cached; every call hits the API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (normally https://api.reurl.cc).
func New(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type shortenRequest struct {
	URL string `json:"url"`
}

type shortenResponse struct {
	ShortURL string `json:"short_url"`
	Res      string `json:"res"`
	Msg      string `json:"msg"`
}

// Shorten returns the short link for long.
func (c *Client) Shorten(ctx context.Context, long string) (string, error) {
	body, err := json.Marshal(shortenRequest{URL: long})
	if err != nil {
		return "", apperr.Shorten("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shorten", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Shorten("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("reurl-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Shorten("request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", apperr.Shorten("failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Shorten(fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var out shortenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Shorten("malformed response", err)
	}
	if out.ShortURL == "" {
		return "", apperr.Shorten("response has no short_url", nil)
	}
	if _, err := url.ParseRequestURI(out.ShortURL); err != nil {
		return "", apperr.Shorten("short_url is not a URL", err)
	}
	return out.ShortURL, nil
}
