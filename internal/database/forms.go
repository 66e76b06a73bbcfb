package database

import (
	"context"
	"fmt"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// CreateFormRecord inserts an audit row for a generated form.
func (db *DB) CreateFormRecord(ctx context.Context, r *models.FormRecord) error {
	query := `
		INSERT INTO form_records (user_id, form_id, title, responder_uri, short_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return db.QueryRowContext(ctx, query,
		r.UserID, r.FormID, r.Title, r.ResponderURI, r.ShortURL,
	).Scan(&r.ID, &r.CreatedAt)
}

// ListFormRecords returns the user's most recent forms, newest first.
// A non-positive limit means 5 and anything above 50 is capped at 50.
func (db *DB) ListFormRecords(ctx context.Context, userID string, limit int) ([]models.FormRecord, error) {
	switch {
	case limit <= 0:
		limit = 5
	case limit > 50:
		limit = 50
	}
	var records []models.FormRecord
	err := db.SelectContext(ctx, &records,
		`SELECT id, user_id, form_id, title, responder_uri, short_url, created_at
		 FROM form_records
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return records, nil
}
