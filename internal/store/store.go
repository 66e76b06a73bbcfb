// Package store keeps per-user OAuth tokens and the record of generated forms.
//
// Two implementations exist: Memory for local runs and tests, and Postgres
// when DATABASE_URL is set. Both are safe for concurrent use by the workers.
package store

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// ErrNotFound means the user has no stored token.
var ErrNotFound = errors.New("store: not found")

// Bounds for RecentForms. Both backends apply them through ClampLimit.
const (
	DefaultRecentForms = 5
	MaxRecentForms     = 50
)

// ClampLimit maps a non-positive limit to DefaultRecentForms and caps the
// rest at MaxRecentForms.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentForms
	case limit > MaxRecentForms:
		return MaxRecentForms
	}
	return limit
}

// Tokens persists one OAuth token per LINE user.
type Tokens interface {
	GetToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	DeleteToken(ctx context.Context, userID string) error
}

// Forms records the forms a user created through the bot.
type Forms interface {
	RecordForm(ctx context.Context, rec *models.FormRecord) error
	RecentForms(ctx context.Context, userID string, limit int) ([]models.FormRecord, error)
}

// Store is the full persistence surface used by the pipeline and handlers.
type Store interface {
	Tokens
	Forms
	// Kind names the backend for the health endpoint ("memory" or "postgres").
	Kind() string
	HealthCheck(ctx context.Context) error
	// CountUsers reports how many users currently hold a token.
	CountUsers(ctx context.Context) (int, error)
}

// PersistingTokenSource wraps src so that any token other than initial is
// written back once. A failed write is reported through onErr and never fails
// the caller.
func PersistingTokenSource(ctx context.Context, tokens Tokens, userID string, initial *oauth2.Token, src oauth2.TokenSource, onErr func(error)) oauth2.TokenSource {
	p := &persistingSource{ctx: ctx, tokens: tokens, userID: userID, src: src, onErr: onErr}
	if initial != nil {
		p.last = initial.AccessToken
	}
	return p
}

type persistingSource struct {
	mu     sync.Mutex
	ctx    context.Context
	tokens Tokens
	userID string
	src    oauth2.TokenSource
	onErr  func(error)
	last   string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		if err := p.tokens.SaveToken(p.ctx, p.userID, tok); err != nil && p.onErr != nil {
			p.onErr(err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
