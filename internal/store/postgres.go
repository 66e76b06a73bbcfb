package store

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/database"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/secret"
)

// Postgres stores tokens sealed with secretbox, so a database dump alone
// does not expose working Google credentials.
type Postgres struct {
	db     *database.DB
	sealer *secret.Sealer
}

// NewPostgres wraps an open database connection.
func NewPostgres(db *database.DB, sealer *secret.Sealer) *Postgres {
	return &Postgres{db: db, sealer: sealer}
}

func (p *Postgres) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	row, err := p.db.GetToken(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	access, err := p.sealer.Open(row.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", userID, err)
	}
	refresh, err := p.sealer.Open(row.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", userID, err)
	}

	return &oauth2.Token{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		TokenType:    row.TokenType,
		Expiry:       row.Expiry,
	}, nil
}

func (p *Postgres) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	access, err := p.sealer.Seal([]byte(tok.AccessToken))
	if err != nil {
		return err
	}
	refresh, err := p.sealer.Seal([]byte(tok.RefreshToken))
	if err != nil {
		return err
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return p.db.UpsertToken(ctx, &models.StoredToken{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenType,
		Expiry:       tok.Expiry,
	})
}

func (p *Postgres) DeleteToken(ctx context.Context, userID string) error {
	return p.db.DeleteToken(ctx, userID)
}

func (p *Postgres) RecordForm(ctx context.Context, rec *models.FormRecord) error {
	return p.db.CreateFormRecord(ctx, rec)
}

func (p *Postgres) RecentForms(ctx context.Context, userID string, limit int) ([]models.FormRecord, error) {
	return p.db.ListFormRecords(ctx, userID, ClampLimit(limit))
}

func (p *Postgres) Kind() string { return "postgres" }

func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.db.HealthCheck(ctx)
}

func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	return p.db.CountTokens(ctx)
}
