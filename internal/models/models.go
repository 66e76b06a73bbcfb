// Package models defines the data structures used throughout the application.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The `db` tags work with sqlx for database column mapping.
package models

import (
	"time"
)

// AudioEvent is the part of a LINE audio message event the pipeline needs.
type AudioEvent struct {
	ReplyToken string    `json:"reply_token"`
	UserID     string    `json:"user_id"`
	MessageID  string    `json:"message_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// TextEvent is a LINE text message, used for bot commands.
type TextEvent struct {
	ReplyToken string `json:"reply_token"`
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
}

// FormSpec is the title document produced by the model:
//
//	{"info": {"title": "...", "documentTitle": "..."}}
type FormSpec struct {
	Title         string `json:"title"`
	DocumentTitle string `json:"documentTitle"`
}

// QuestionKind distinguishes free-text from multiple-choice questions.
type QuestionKind string

const (
	QuestionText   QuestionKind = "text"
	QuestionChoice QuestionKind = "choice"
)

// Question is one item of a generated form.
type Question struct {
	Title    string
	Required bool
	Kind     QuestionKind
	// Text questions only
	Paragraph bool
	// Choice questions only
	ChoiceType string // RADIO, CHECKBOX or DROP_DOWN
	Options    []string
	Shuffle    bool
	Index      int
}

// FormContent is the ordered list of questions. Index values are always
// 0..len-1 in slice order.
type FormContent struct {
	Questions []Question
}

// FormResult describes a form after it was created and populated.
type FormResult struct {
	FormID       string `json:"form_id"`
	Title        string `json:"title"`
	ResponderURI string `json:"responder_uri"`
	Questions    int    `json:"questions"`
}

// FormRecord is the audit row written after a pipeline run succeeds.
type FormRecord struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	FormID       string    `json:"form_id" db:"form_id"`
	Title        string    `json:"title" db:"title"`
	ResponderURI string    `json:"responder_uri" db:"responder_uri"`
	ShortURL     string    `json:"short_url" db:"short_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// StoredToken is the persisted shape of a user's OAuth token pair.
// Token values are sealed before they reach the database.
type StoredToken struct {
	UserID       string    `db:"user_id"`
	AccessToken  []byte    `db:"access_token"`
	RefreshToken []byte    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Expiry       time.Time `db:"expiry"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Store           string `json:"store"`
	Database        string `json:"database,omitempty"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	PendingAuth     int    `json:"pending_authorizations"`
	AuthorizedUsers int    `json:"authorized_users"`
}
