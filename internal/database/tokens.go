package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertToken writes the user's token row, replacing any previous one.
// Token columns must already be sealed by the caller.
func (db *DB) UpsertToken(ctx context.Context, t *models.StoredToken) error {
	query := `
		INSERT INTO oauth_tokens (user_id, access_token, refresh_token, token_type, expiry)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, oauth_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
		RETURNING updated_at`

	err := db.QueryRowContext(ctx, query,
		t.UserID, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetToken returns the stored token row for userID, or ErrNotFound.
func (db *DB) GetToken(ctx context.Context, userID string) (*models.StoredToken, error) {
	var t models.StoredToken
	err := db.GetContext(ctx, &t,
		`SELECT user_id, access_token, refresh_token, token_type, expiry, updated_at
		 FROM oauth_tokens WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &t, nil
}

// DeleteToken removes the user's token row. Deleting a missing row is not an error.
func (db *DB) DeleteToken(ctx context.Context, userID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// CountTokens returns how many users have authorized the bot.
func (db *DB) CountTokens(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM oauth_tokens`); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}
