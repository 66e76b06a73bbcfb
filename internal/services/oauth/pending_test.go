package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

func newAuth(id, user string, ttl time.Duration) Authorization {
	return Authorization{ID: id, UserID: user, State: "state-" + id, Link: "https://reurl.cc/" + id, ExpiresAt: time.Now().Add(ttl)}
}

func TestPending_ParkAndComplete(t *testing.T) {
	p := NewPending()

	if _, ok := p.Park("U1", models.AudioEvent{MessageID: "m0"}); ok {
		t.Fatal("Park() on empty registry = true")
	}

	a, created := p.Add(newAuth("a1", "U1", time.Minute), models.AudioEvent{MessageID: "m1"})
	if !created || len(a.Events) != 1 {
		t.Fatalf("Add() = %+v, %v", a, created)
	}

	again, ok := p.Park("U1", models.AudioEvent{MessageID: "m2"})
	if !ok || again.Link != a.Link {
		t.Fatalf("Park() = %+v, %v; want same link", again, ok)
	}

	done, err := p.Complete("a1", "U1")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(done.Events) != 2 || done.Events[0].MessageID != "m1" || done.Events[1].MessageID != "m2" {
		t.Errorf("Complete() events = %+v, want m1 then m2", done.Events)
	}

	select {
	case <-done.Done():
	default:
		t.Error("Done() not closed after Complete")
	}

	if _, err := p.Complete("a1", "U1"); !errors.Is(err, apperr.ErrStateInvalid) {
		t.Errorf("second Complete() error = %v, want ErrStateInvalid", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestPending_AddJoinsExisting(t *testing.T) {
	p := NewPending()
	p.Add(newAuth("a1", "U1", time.Minute), models.AudioEvent{MessageID: "m1"})

	got, created := p.Add(newAuth("a2", "U1", time.Minute), models.AudioEvent{MessageID: "m2"})
	if created {
		t.Fatal("Add() created a second authorization for the same user")
	}
	if got.ID != "a1" || len(got.Events) != 2 {
		t.Errorf("Add() = %+v, want a1 with two events", got)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestPending_CompleteWrongUser(t *testing.T) {
	p := NewPending()
	p.Add(newAuth("a1", "U1", time.Minute), models.AudioEvent{})

	if _, err := p.Complete("a1", "U2"); !errors.Is(err, apperr.ErrStateInvalid) {
		t.Errorf("Complete() error = %v, want ErrStateInvalid", err)
	}
	// The rightful owner can still complete.
	if _, err := p.Complete("a1", "U1"); err != nil {
		t.Errorf("Complete() error = %v", err)
	}
}

func TestPending_ConcurrentComplete(t *testing.T) {
	p := NewPending()
	p.Add(newAuth("a1", "U1", time.Minute), models.AudioEvent{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Complete("a1", "U1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d goroutines completed the same state, want 1", wins)
	}
}

func TestPending_Expire(t *testing.T) {
	p := NewPending()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.Add(Authorization{ID: "old", UserID: "U1", ExpiresAt: now.Add(time.Second)}, models.AudioEvent{})
	p.Add(Authorization{ID: "new", UserID: "U2", ExpiresAt: now.Add(time.Hour)}, models.AudioEvent{})

	now = now.Add(time.Minute)

	if _, ok := p.Park("U1", models.AudioEvent{}); ok {
		t.Error("Park() joined an expired authorization")
	}
	if _, err := p.Complete("old", "U1"); !errors.Is(err, apperr.ErrStateInvalid) {
		t.Errorf("Complete() on expired error = %v", err)
	}

	p.Add(Authorization{ID: "old2", UserID: "U3", ExpiresAt: now.Add(-time.Second)}, models.AudioEvent{})
	expired := p.Expire()
	if len(expired) != 1 || expired[0].ID != "old2" {
		t.Errorf("Expire() = %+v, want old2", expired)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestPending_RunJanitor(t *testing.T) {
	p := NewPending()
	p.Add(newAuth("a1", "U1", 20*time.Millisecond), models.AudioEvent{MessageID: "m1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expired := make(chan Authorization, 1)
	go p.RunJanitor(ctx, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), func(a Authorization) {
		expired <- a
	})

	select {
	case a := <-expired:
		if a.UserID != "U1" || len(a.Events) != 1 {
			t.Errorf("expired = %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never expired the authorization")
	}
}

func TestPending_Cancel(t *testing.T) {
	p := NewPending()
	a, _ := p.Add(newAuth("a1", "U1", time.Minute), models.AudioEvent{})

	if !p.Cancel("U1") {
		t.Fatal("Cancel() = false")
	}
	if p.Cancel("U1") {
		t.Error("second Cancel() = true")
	}
	select {
	case <-a.Done():
	default:
		t.Error("Done() not closed after Cancel")
	}
}
