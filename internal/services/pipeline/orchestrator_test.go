package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/audio"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/oauth"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/worker"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/store"
)

// --- fakes ---

type sent struct {
	to   string // reply token or user id
	text string
}

type fakeMessenger struct {
	mu         sync.Mutex
	replies    []sent
	pushes     []sent
	replyErr   error
	contentErr error
}

func (m *fakeMessenger) Reply(_ context.Context, token, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, sent{token, text})
	return nil
}

func (m *fakeMessenger) Push(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, sent{userID, text})
	return nil
}

func (m *fakeMessenger) Content(context.Context, string) (io.ReadCloser, error) {
	if m.contentErr != nil {
		return nil, m.contentErr
	}
	return io.NopCloser(strings.NewReader("m4a-bytes")), nil
}

func (m *fakeMessenger) snapshot() (replies, pushes []sent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.replies...), append([]sent(nil), m.pushes...)
}

type fakeAuthorizer struct {
	mu        sync.Mutex
	states    []string
	exchanged int
	err       error
}

func (a *fakeAuthorizer) AuthCodeURL(state string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = append(a.states, state)
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (a *fakeAuthorizer) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exchanged++
	if a.err != nil {
		return nil, a.err
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh"}, nil
}

func (a *fakeAuthorizer) TokenSource(_ context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(tok)
}

func (a *fakeAuthorizer) lastState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[len(a.states)-1]
}

type fakeBuilder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (b *fakeBuilder) Build(_ context.Context, ts oauth2.TokenSource, path string) (*models.FormResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, path)
	if b.err != nil {
		return nil, b.err
	}
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	return &models.FormResult{
		FormID:       "form-1",
		Title:        "活動報名",
		ResponderURI: "https://docs.google.com/forms/d/e/form-1/viewform",
		Questions:    2,
	}, nil
}

type fakeShortener struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeShortener) Shorten(_ context.Context, long string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if strings.Contains(long, "accounts.google.com") {
		return "https://reurl.cc/auth", nil
	}
	return "https://reurl.cc/form", nil
}

// copyTranscoder stands in for ffmpeg.
type copyTranscoder struct{}

func (copyTranscoder) ToMP3(_ context.Context, src, dst string) (audio.Info, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return audio.Info{}, err
	}
	return audio.Info{SampleRate: 44100, Duration: time.Second}, os.WriteFile(dst, data, 0o600)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (q *fakeQueue) Submit(job worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type codeOnce struct{ code string }

func (c codeOnce) Wait(context.Context, string) (string, error) { return c.code, nil }

type harness struct {
	orch      *Orchestrator
	msg       *fakeMessenger
	auth      *fakeAuthorizer
	builder   *fakeBuilder
	shortener *fakeShortener
	queue     *fakeQueue
	store     *store.Memory
	tempDir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	states, err := oauth.NewStateSigner("s3cret", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		msg:       &fakeMessenger{},
		auth:      &fakeAuthorizer{},
		builder:   &fakeBuilder{},
		shortener: &fakeShortener{},
		queue:     &fakeQueue{},
		store:     store.NewMemory(),
		tempDir:   t.TempDir(),
	}
	h.orch = New(Deps{
		Messenger:   h.msg,
		Authorizer:  h.auth,
		States:      states,
		Pending:     oauth.NewPending(),
		Store:       h.store,
		Builder:     h.builder,
		Shortener:   h.shortener,
		Transcoder:  copyTranscoder{},
		Queue:       h.queue,
		TempDir:     h.tempDir,
		AuthTimeout: 10 * time.Minute,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) authorize(t *testing.T, userID string) {
	t.Helper()
	if err := h.store.SaveToken(context.Background(), userID, &oauth2.Token{
		AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
}

func voice(userID, messageID string) models.AudioEvent {
	return models.AudioEvent{ReplyToken: "rt-" + messageID, UserID: userID, MessageID: messageID, ReceivedAt: time.Now()}
}

// --- tests ---

func TestHandleAudio_Unauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.orch.HandleAudio(ctx, voice("U1", "m1")); err != nil {
		t.Fatalf("HandleAudio() error = %v", err)
	}

	replies, pushes := h.msg.snapshot()
	if len(replies) != 1 || len(pushes) != 0 {
		t.Fatalf("replies=%v pushes=%v, want exactly one reply", replies, pushes)
	}
	if replies[0].to != "rt-m1" || !strings.Contains(replies[0].text, "https://reurl.cc/auth") {
		t.Errorf("reply = %+v, want consent link on the event's reply token", replies[0])
	}
	if len(h.builder.calls) != 0 {
		t.Error("form built for an unauthorized user")
	}
	if n := h.orch.PendingCount(); n != 1 {
		t.Errorf("PendingCount() = %d, want 1", n)
	}

	// A second message joins the open authorization.
	if err := h.orch.HandleAudio(ctx, voice("U1", "m2")); err != nil {
		t.Fatal(err)
	}
	replies, _ = h.msg.snapshot()
	if len(replies) != 2 || !strings.HasPrefix(replies[1].text, "授權尚未完成") {
		t.Errorf("second reply = %+v, want reminder", replies)
	}
	if len(h.auth.states) != 1 || h.shortener.calls != 1 {
		t.Errorf("issued %d states and %d short links, want 1 each", len(h.auth.states), h.shortener.calls)
	}
}

func TestHandleAudio_ConsentLinkFallsBackToPush(t *testing.T) {
	h := newHarness(t)
	h.msg.replyErr = errors.New("invalid reply token")

	if err := h.orch.HandleAudio(context.Background(), voice("U1", "m1")); err != nil {
		t.Fatalf("HandleAudio() error = %v", err)
	}

	_, pushes := h.msg.snapshot()
	if len(pushes) != 1 {
		t.Fatalf("pushes = %v, want the consent link pushed once", pushes)
	}
	if pushes[0].to != "U1" || !strings.Contains(pushes[0].text, "https://reurl.cc/auth") {
		t.Errorf("push = %+v, want consent link sent to U1", pushes[0])
	}
	if n := h.orch.PendingCount(); n != 1 {
		t.Errorf("PendingCount() = %d, want 1", n)
	}
}

func TestHandleAudio_Authorized(t *testing.T) {
	h := newHarness(t)
	h.authorize(t, "U1")

	if err := h.orch.HandleAudio(context.Background(), voice("U1", "m1")); err != nil {
		t.Fatalf("HandleAudio() error = %v", err)
	}

	if len(h.builder.calls) != 1 || filepath.Ext(h.builder.calls[0]) != ".mp3" {
		t.Fatalf("builder calls = %v, want one mp3", h.builder.calls)
	}
	replies, pushes := h.msg.snapshot()
	if len(replies) != 1 || len(pushes) != 0 {
		t.Fatalf("replies=%v pushes=%v", replies, pushes)
	}
	if !strings.Contains(replies[0].text, "https://reurl.cc/form") || !strings.Contains(replies[0].text, "活動報名") {
		t.Errorf("reply = %q, want title and short link", replies[0].text)
	}

	recent, _ := h.store.RecentForms(context.Background(), "U1", 5)
	if len(recent) != 1 || recent[0].ShortURL != "https://reurl.cc/form" {
		t.Errorf("recorded forms = %+v", recent)
	}

	// Audio artifacts are gone.
	entries, _ := os.ReadDir(h.tempDir)
	if len(entries) != 0 {
		t.Errorf("temp dir still holds %d entries", len(entries))
	}
}

func TestHandleAudio_FailuresAreSilent(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		wantErr error
	}{
		{
			name:    "malformed model output",
			setup:   func(h *harness) { h.builder.err = apperr.MalformedAI("not json", nil) },
			wantErr: apperr.ErrMalformedAIResponse,
		},
		{
			name:    "forms api failure",
			setup:   func(h *harness) { h.builder.err = apperr.ExternalAPI("forms.create", errors.New("503")) },
			wantErr: apperr.ErrExternalAPI,
		},
		{
			name:    "download failure",
			setup:   func(h *harness) { h.msg.contentErr = apperr.ExternalAPI("content", nil) },
			wantErr: apperr.ErrExternalAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.authorize(t, "U1")
			tt.setup(h)

			err := h.orch.HandleAudio(context.Background(), voice("U1", "m1"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleAudio() error = %v, want %v", err, tt.wantErr)
			}
			replies, pushes := h.msg.snapshot()
			if len(replies)+len(pushes) != 0 {
				t.Errorf("user was messaged: replies=%v pushes=%v", replies, pushes)
			}
			if recent, _ := h.store.RecentForms(context.Background(), "U1", 5); len(recent) != 0 {
				t.Errorf("failed run recorded a form")
			}
		})
	}
}

func TestHandleAudio_RevokedTokenIsForgotten(t *testing.T) {
	h := newHarness(t)
	h.authorize(t, "U1")
	h.builder.err = apperr.ExternalAPI("forms.create", &oauth2.RetrieveError{ErrorCode: "invalid_grant"})

	if err := h.orch.HandleAudio(context.Background(), voice("U1", "m1")); err == nil {
		t.Fatal("HandleAudio() error = nil")
	}
	if _, err := h.store.GetToken(context.Background(), "U1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetToken() error = %v, want ErrNotFound after revocation", err)
	}
}

func TestHandleAudio_Delivery(t *testing.T) {
	t.Run("resumed event is pushed", func(t *testing.T) {
		h := newHarness(t)
		h.authorize(t, "U1")
		ev := voice("U1", "m1")
		ev.ReplyToken = ""

		if err := h.orch.HandleAudio(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
		replies, pushes := h.msg.snapshot()
		if len(replies) != 0 || len(pushes) != 1 || pushes[0].to != "U1" {
			t.Errorf("replies=%v pushes=%v, want one push to U1", replies, pushes)
		}
	})

	t.Run("expired reply token falls back to push", func(t *testing.T) {
		h := newHarness(t)
		h.authorize(t, "U1")
		h.msg.replyErr = errors.New("Invalid reply token")

		if err := h.orch.HandleAudio(context.Background(), voice("U1", "m1")); err != nil {
			t.Fatal(err)
		}
		if _, pushes := h.msg.snapshot(); len(pushes) != 1 {
			t.Errorf("pushes = %v, want fallback push", pushes)
		}
	})
}

func TestCompleteAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_ = h.orch.HandleAudio(ctx, voice("U1", "m1"))
	_ = h.orch.HandleAudio(ctx, voice("U1", "m2"))
	state := h.auth.lastState()

	userID, err := h.orch.CompleteAuthorization(ctx, state, "code-1")
	if err != nil || userID != "U1" {
		t.Fatalf("CompleteAuthorization() = %q, %v", userID, err)
	}

	tok, err := h.store.GetToken(ctx, "U1")
	if err != nil || tok.AccessToken != "access-code-1" {
		t.Fatalf("stored token = %+v, %v", tok, err)
	}
	if h.queue.len() != 2 {
		t.Fatalf("requeued %d jobs, want 2", h.queue.len())
	}
	for _, job := range h.queue.jobs {
		if job.Type != worker.JobAudio || job.Audio.ReplyToken != "" {
			t.Errorf("job = %+v, want audio job without reply token", job)
		}
	}
	if _, pushes := h.msg.snapshot(); len(pushes) != 1 || pushes[0].text != msgAuthorized {
		t.Errorf("pushes = %v, want confirmation", pushes)
	}
	if h.orch.PendingCount() != 0 {
		t.Error("authorization still pending")
	}

	// The same state cannot be used twice.
	if _, err := h.orch.CompleteAuthorization(ctx, state, "code-1"); !errors.Is(err, apperr.ErrStateInvalid) {
		t.Errorf("second CompleteAuthorization() error = %v, want ErrStateInvalid", err)
	}
	if h.auth.exchanged != 1 {
		t.Errorf("code exchanged %d times, want 1", h.auth.exchanged)
	}
}

func TestCompleteAuthorization_Rejections(t *testing.T) {
	t.Run("forged state", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.orch.CompleteAuthorization(context.Background(), "not-a-jwt", "code"); !errors.Is(err, apperr.ErrStateInvalid) {
			t.Errorf("error = %v, want ErrStateInvalid", err)
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := newHarness(t)
		h.auth.err = apperr.Auth("invalid_grant", nil)
		_ = h.orch.HandleAudio(context.Background(), voice("U1", "m1"))

		_, err := h.orch.CompleteAuthorization(context.Background(), h.auth.lastState(), "bad")
		if !errors.Is(err, apperr.ErrAuth) {
			t.Fatalf("error = %v, want ErrAuth", err)
		}
		if _, pushes := h.msg.snapshot(); len(pushes) != 1 || pushes[0].text != msgAuthFailed {
			t.Errorf("pushes = %v, want failure notice", pushes)
		}
		if h.queue.len() != 0 {
			t.Error("jobs requeued after failed exchange")
		}
	})
}

func TestCodeWaiterCompletesAuthorization(t *testing.T) {
	h := newHarness(t)
	h.orch.CodeWaiter = codeOnce{code: "polled"}

	if err := h.orch.HandleAudio(context.Background(), voice("U1", "m1")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.queue.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.queue.len() != 1 {
		t.Fatal("polled code did not complete the authorization")
	}
	if tok, err := h.store.GetToken(context.Background(), "U1"); err != nil || tok.AccessToken != "access-polled" {
		t.Errorf("stored token = %+v, %v", tok, err)
	}
}

func TestHandleText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize(t, "U1")

	text := func(s string) models.TextEvent { return models.TextEvent{ReplyToken: "rt", UserID: "U1", Text: s} }

	if err := h.orch.HandleText(ctx, text("/forms")); err != nil {
		t.Fatal(err)
	}
	_ = h.store.RecordForm(ctx, &models.FormRecord{UserID: "U1", Title: "午餐調查", ShortURL: "https://reurl.cc/lunch"})
	_ = h.orch.HandleText(ctx, text("/FORMS"))
	_ = h.orch.HandleText(ctx, text("hello there"))
	_ = h.orch.HandleText(ctx, text("   "))

	replies, _ := h.msg.snapshot()
	if len(replies) != 2 {
		t.Fatalf("replies = %v, want 2", replies)
	}
	if replies[0].text != msgNoForms {
		t.Errorf("first reply = %q", replies[0].text)
	}
	if !strings.Contains(replies[1].text, "https://reurl.cc/lunch") {
		t.Errorf("second reply = %q, want recent form link", replies[1].text)
	}

	if err := h.orch.HandleText(ctx, text("/logout")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.GetToken(ctx, "U1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("token still stored after /logout")
	}
}

func TestExpiredAuthorizationNotifiesUser(t *testing.T) {
	h := newHarness(t)

	h.orch.expired(oauth.Authorization{UserID: "U9"})

	_, pushes := h.msg.snapshot()
	if len(pushes) != 1 || pushes[0].to != "U9" || pushes[0].text != msgAuthExpired {
		t.Errorf("pushes = %v, want expiry notice to U9", pushes)
	}
}
