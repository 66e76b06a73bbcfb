package oauth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// Authorization is a consent link that has been sent and not yet answered.
// Values returned by Pending are snapshots; Events is a copy.
type Authorization struct {
	ID        string
	UserID    string
	State     string
	Link      string
	Events    []models.AudioEvent
	ExpiresAt time.Time

	done chan struct{}
}

// Done is closed once the authorization is completed, expired or cancelled.
func (a Authorization) Done() <-chan struct{} { return a.done }

func (a *Authorization) snapshot() Authorization {
	cp := *a
	cp.Events = append([]models.AudioEvent(nil), a.Events...)
	return cp
}

// Pending tracks open authorizations, at most one per user.
//
// Go Pattern: a mutex-guarded pair of maps. byID resolves callbacks, byUser
// lets repeated voice messages join the authorization already in flight.
type Pending struct {
	mu     sync.Mutex
	byID   map[string]*Authorization
	byUser map[string]*Authorization
	now    func() time.Time
}

// NewPending creates an empty registry.
func NewPending() *Pending {
	return &Pending{
		byID:   make(map[string]*Authorization),
		byUser: make(map[string]*Authorization),
		now:    time.Now,
	}
}

// Park appends ev to the user's open authorization. It reports false when the
// user has none (or it already expired).
func (p *Pending) Park(userID string, ev models.AudioEvent) (Authorization, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byUser[userID]
	if !ok || !p.now().Before(a.ExpiresAt) {
		return Authorization{}, false
	}
	a.Events = append(a.Events, ev)
	return a.snapshot(), true
}

// Add registers auth with ev as its first parked event. If another goroutine
// registered an authorization for the same user first, ev is parked on that
// one instead and created is false.
func (p *Pending) Add(auth Authorization, ev models.AudioEvent) (stored Authorization, created bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byUser[auth.UserID]; ok && p.now().Before(existing.ExpiresAt) {
		existing.Events = append(existing.Events, ev)
		return existing.snapshot(), false
	} else if ok {
		p.removeLocked(existing)
	}

	a := auth
	a.Events = []models.AudioEvent{ev}
	a.done = make(chan struct{})
	p.byID[a.ID] = &a
	p.byUser[a.UserID] = &a
	return a.snapshot(), true
}

// Complete removes the authorization with the given id and returns it.
// Only the first call for an id succeeds, so a code is exchanged at most once.
func (p *Pending) Complete(id, userID string) (Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byID[id]
	if !ok {
		return Authorization{}, apperr.State("no pending authorization for state", nil)
	}
	if a.UserID != userID {
		return Authorization{}, apperr.State("state does not belong to this authorization", nil)
	}
	if !p.now().Before(a.ExpiresAt) {
		p.removeLocked(a)
		return Authorization{}, apperr.State("authorization expired", nil)
	}
	p.removeLocked(a)
	return a.snapshot(), nil
}

// Cancel drops the user's open authorization, if any.
func (p *Pending) Cancel(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byUser[userID]
	if ok {
		p.removeLocked(a)
	}
	return ok
}

// Expire removes every authorization whose deadline has passed.
func (p *Pending) Expire() []Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var expired []Authorization
	for _, a := range p.byID {
		if !now.Before(a.ExpiresAt) {
			p.removeLocked(a)
			expired = append(expired, a.snapshot())
		}
	}
	return expired
}

// Len returns the number of open authorizations.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// RunJanitor expires authorizations every interval until ctx is cancelled.
// onExpire runs outside the lock for each expired entry.
func (p *Pending) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger, onExpire func(Authorization)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range p.Expire() {
				logger.Info("authorization expired", "user_id", a.UserID, "parked_events", len(a.Events))
				if onExpire != nil {
					onExpire(a)
				}
			}
		}
	}
}

func (p *Pending) removeLocked(a *Authorization) {
	delete(p.byID, a.ID)
	if cur, ok := p.byUser[a.UserID]; ok && cur == a {
		delete(p.byUser, a.UserID)
	}
	select {
	case <-a.done:
	default:
		close(a.done)
	}
}
