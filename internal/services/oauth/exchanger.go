// Package oauth runs the Google authorization flow for LINE users.
//
// The flow is asynchronous: a user who has not authorized the bot gets a
// consent link whose state parameter is a signed token naming the user. The
// redirect back to /oauth2callback (or the optional code poller) completes
// the pending authorization and the parked events resume.
package oauth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

// Scopes requested on the consent screen. forms.body creates and edits forms;
// drive lets the bot delete a half-built form.
var Scopes = []string{
	"https://www.googleapis.com/auth/forms.body",
	"https://www.googleapis.com/auth/drive",
}

// Exchanger turns authorization codes into token pairs.
type Exchanger struct {
	cfg    *oauth2.Config
	client *http.Client
}

// NewExchanger creates an Exchanger for Google's OAuth endpoints.
func NewExchanger(clientID, clientSecret, redirectURI string) *Exchanger {
	return NewExchangerWithEndpoint(clientID, clientSecret, redirectURI, google.Endpoint)
}

// NewExchangerWithEndpoint is used by tests to point at a local token server.
func NewExchangerWithEndpoint(clientID, clientSecret, redirectURI string, endpoint oauth2.Endpoint) *Exchanger {
	return &Exchanger{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthCodeURL builds the consent link. Offline access with a forced consent
// prompt makes Google return a refresh token every time.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades code for a token pair. Both tokens must be present.
func (e *Exchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	tok, err := e.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Auth("failed to exchange authorization code", err)
	}
	if tok.AccessToken == "" {
		return nil, apperr.Auth("token response has no access_token", nil)
	}
	if tok.RefreshToken == "" {
		return nil, apperr.Auth("token response has no refresh_token", nil)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires.
func (e *Exchanger) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	return e.cfg.TokenSource(ctx, tok)
}
