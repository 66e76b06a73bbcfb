package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// Memory keeps everything in process. Restarting the server forgets every
// authorization.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]oauth2.Token
	forms  map[string][]models.FormRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tokens: make(map[string]oauth2.Token),
		forms:  make(map[string][]models.FormRecord),
	}
}

func (m *Memory) GetToken(_ context.Context, userID string) (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tok, nil
}

// SaveToken stores a copy of tok. An empty refresh token keeps the previous one,
// matching how Google omits it on refresh.
func (m *Memory) SaveToken(_ context.Context, userID string, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	if prev, ok := m.tokens[userID]; ok && cp.RefreshToken == "" {
		cp.RefreshToken = prev.RefreshToken
	}
	m.tokens[userID] = cp
	return nil
}

func (m *Memory) DeleteToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

func (m *Memory) RecordForm(_ context.Context, rec *models.FormRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.forms[rec.UserID] = append(m.forms[rec.UserID], *rec)
	return nil
}

// RecentForms returns up to ClampLimit(limit) records, newest first.
func (m *Memory) RecentForms(_ context.Context, userID string, limit int) ([]models.FormRecord, error) {
	m.mu.RLock()
	records := append([]models.FormRecord(nil), m.forms[userID]...)
	m.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit = ClampLimit(limit); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *Memory) Kind() string { return "memory" }

func (m *Memory) HealthCheck(context.Context) error { return nil }

func (m *Memory) CountUsers(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens), nil
}
