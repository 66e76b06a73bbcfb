package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// CodePoller asks an external collaborator for the authorization code.
//
// Some deployments receive the Google redirect on a separate host. That host
// exposes GET <url>?state=<state> answering {"authorization_code": "..."} once
// the user has consented. Any other answer means "not yet".
type CodePoller struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// DefaultPollInterval is used when NewCodePoller gets a non-positive interval.
const DefaultPollInterval = 3 * time.Second

// NewCodePoller creates a poller. A non-positive interval falls back to
// DefaultPollInterval; time.NewTicker would panic on it.
func NewCodePoller(endpoint string, interval time.Duration, logger *slog.Logger) *CodePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CodePoller{
		url:      endpoint,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type codeResponse struct {
	AuthorizationCode string `json:"authorization_code"`
}

// Wait polls until a code is available or ctx ends.
func (p *CodePoller) Wait(ctx context.Context, state string) (string, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		code, err := p.fetch(ctx, state)
		if err != nil {
			p.logger.Debug("code endpoint not ready", "error", err)
		}
		if code != "" {
			return code, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *CodePoller) fetch(ctx context.Context, state string) (string, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return "", fmt.Errorf("invalid code endpoint: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var body codeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return body.AuthorizationCode, nil
}
