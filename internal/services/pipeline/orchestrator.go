// Package pipeline turns LINE voice messages into Google Forms.
//
// Each user is in one of three states. Without a stored token the user is
// Unauthorized: the bot replies with a consent link and parks the message on a
// pending authorization (AwaitingCode). When the code arrives, through the
// OAuth callback or the optional code poller, the token is stored and the
// parked messages are queued again. With a token the user is Authorized and
// the message goes straight through download, transcode, form creation and
// link shortening.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/audio"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/oauth"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/worker"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/store"
)

// Messenger is the chat platform.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
	Content(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// Authorizer is the OAuth client.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
}

// FormBuilder creates a form from an mp3.
type FormBuilder interface {
	Build(ctx context.Context, ts oauth2.TokenSource, audioPath string) (*models.FormResult, error)
}

// Shortener shortens links.
type Shortener interface {
	Shorten(ctx context.Context, url string) (string, error)
}

// Transcoder converts the downloaded m4a into mp3.
type Transcoder interface {
	ToMP3(ctx context.Context, src, dst string) (audio.Info, error)
}

// Queue accepts jobs for the worker pool.
type Queue interface {
	Submit(job worker.Job) error
}

// CodeWaiter fetches an authorization code from an external collaborator.
type CodeWaiter interface {
	Wait(ctx context.Context, state string) (string, error)
}

// Deps are the Orchestrator's collaborators. CodeWaiter may be nil.
type Deps struct {
	Messenger   Messenger
	Authorizer  Authorizer
	States      *oauth.StateSigner
	Pending     *oauth.Pending
	Store       store.Store
	Builder     FormBuilder
	Shortener   Shortener
	Transcoder  Transcoder
	Queue       Queue
	CodeWaiter  CodeWaiter
	TempDir     string
	AuthTimeout time.Duration
	Logger      *slog.Logger
}

// Orchestrator implements worker.Handler.
type Orchestrator struct {
	Deps

	now func() time.Time

	// ctx outlives single jobs: code pollers and the janitor run on it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ worker.Handler = (*Orchestrator)(nil)

// New creates an Orchestrator. Call Start to run the expiry janitor and Close
// on shutdown.
func New(d Deps) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{Deps: d, now: time.Now, ctx: ctx, cancel: cancel}
}

// Start runs the janitor that expires unanswered consent links.
func (o *Orchestrator) Start(interval time.Duration) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Pending.RunJanitor(o.ctx, interval, o.Logger, o.expired)
	}()
}

// Close stops the janitor and any code pollers.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// HandleAudio processes one voice message.
func (o *Orchestrator) HandleAudio(ctx context.Context, ev models.AudioEvent) error {
	logger := o.Logger.With("user_id", ev.UserID, "message_id", ev.MessageID)

	tok, err := o.Store.GetToken(ctx, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return o.requestAuthorization(ctx, ev, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	return o.process(ctx, ev, tok, logger)
}

// requestAuthorization sends the consent link and parks ev until the user
// answers it. Nothing here waits for the user.
func (o *Orchestrator) requestAuthorization(ctx context.Context, ev models.AudioEvent, logger *slog.Logger) error {
	if a, ok := o.Pending.Park(ev.UserID, ev); ok {
		logger.Info("authorization already pending, message parked", "parked", len(a.Events))
		return o.deliver(ctx, ev, fmt.Sprintf(msgAuthorizeAgain, a.Link), logger)
	}

	state, id, err := o.States.Issue(ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to sign state: %w", err)
	}
	link := o.Authorizer.AuthCodeURL(state)
	if short, err := o.Shortener.Shorten(ctx, link); err != nil {
		logger.Warn("could not shorten consent link, sending it in full", "error", err)
	} else {
		link = short
	}

	a, created := o.Pending.Add(oauth.Authorization{
		ID:        id,
		UserID:    ev.UserID,
		State:     state,
		Link:      link,
		ExpiresAt: o.now().Add(o.AuthTimeout),
	}, ev)

	text := fmt.Sprintf(msgAuthorize, a.Link)
	if created {
		logger.Info("🔑 authorization requested", "expires_at", a.ExpiresAt)
		if o.CodeWaiter != nil {
			o.wg.Add(1)
			go o.awaitCode(a)
		}
	} else {
		text = fmt.Sprintf(msgAuthorizeAgain, a.Link)
	}
	return o.deliver(ctx, ev, text, logger)
}

// CompleteAuthorization finishes the consent flow identified by state. It
// returns the user id so callers can log it. Errors are ErrStateInvalid for a
// bad, used or expired state, and ErrAuth when Google rejects the code.
func (o *Orchestrator) CompleteAuthorization(ctx context.Context, state, code string) (string, error) {
	userID, id, err := o.States.Verify(state)
	if err != nil {
		return "", err
	}
	a, err := o.Pending.Complete(id, userID)
	if err != nil {
		return userID, err
	}
	logger := o.Logger.With("user_id", userID)

	tok, err := o.Authorizer.Exchange(ctx, code)
	if err != nil {
		// The pending entry is gone, so the parked messages are dropped.
		logger.Error("code exchange failed", "error", err, "dropped", len(a.Events))
		o.push(ctx, userID, msgAuthFailed, logger)
		return userID, err
	}
	if err := o.Store.SaveToken(ctx, userID, tok); err != nil {
		return userID, fmt.Errorf("failed to store token: %w", err)
	}
	logger.Info("🔓 user authorized", "parked", len(a.Events))

	if len(a.Events) > 0 {
		o.push(ctx, userID, msgAuthorized, logger)
	}
	for _, ev := range a.Events {
		// The reply token was spent on the consent link.
		ev.ReplyToken = ""
		if err := o.Queue.Submit(worker.AudioJob(ev)); err != nil {
			logger.Error("failed to requeue parked message", "message_id", ev.MessageID, "error", err)
		}
	}
	return userID, nil
}

// awaitCode polls the code collaborator until the authorization completes,
// expires or the orchestrator closes.
func (o *Orchestrator) awaitCode(a oauth.Authorization) {
	defer o.wg.Done()
	logger := o.Logger.With("user_id", a.UserID)

	ctx, cancel := context.WithDeadline(o.ctx, a.ExpiresAt)
	defer cancel()
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	code, err := o.CodeWaiter.Wait(ctx, a.State)
	if err != nil {
		logger.Debug("code poller stopped", "reason", err)
		return
	}

	// Completing closes a.Done, which cancels ctx, so the exchange gets its own.
	exchangeCtx, stop := context.WithTimeout(o.ctx, time.Minute)
	defer stop()
	if _, err := o.CompleteAuthorization(exchangeCtx, a.State, code); err != nil {
		logger.Warn("polled code could not complete authorization", "error", err)
	}
}

// expired tells the user their consent link timed out.
func (o *Orchestrator) expired(a oauth.Authorization) {
	ctx, cancel := context.WithTimeout(o.ctx, 30*time.Second)
	defer cancel()
	o.push(ctx, a.UserID, msgAuthExpired, o.Logger.With("user_id", a.UserID))
}

// process runs an authorized user's voice message end to end.
func (o *Orchestrator) process(ctx context.Context, ev models.AudioEvent, tok *oauth2.Token, logger *slog.Logger) error {
	ts := store.PersistingTokenSource(ctx, o.Store, ev.UserID, tok, o.Authorizer.TokenSource(ctx, tok), func(err error) {
		logger.Warn("failed to save refreshed token", "error", err)
	})

	art, err := audio.NewArtifact(o.TempDir, ev.MessageID)
	if err != nil {
		return err
	}
	defer func() {
		if err := art.Remove(); err != nil {
			logger.Warn("failed to remove audio artifact", "error", err)
		}
	}()

	body, err := o.Messenger.Content(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	size, err := art.Write(".m4a", body)
	body.Close()
	if err != nil {
		return err
	}

	info, err := o.Transcoder.ToMP3(ctx, art.Path(".m4a"), art.Path(".mp3"))
	if err != nil {
		return err
	}
	logger.Debug("audio ready", "bytes", size, "duration", info.Duration)

	result, err := o.Builder.Build(ctx, ts, art.Path(".mp3"))
	if err != nil {
		if isRevoked(err) {
			logger.Warn("refresh token revoked, forgetting it")
			if derr := o.Store.DeleteToken(ctx, ev.UserID); derr != nil {
				logger.Error("failed to delete revoked token", "error", derr)
			}
		}
		return err
	}

	short, err := o.Shortener.Shorten(ctx, result.ResponderURI)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(msgFormReady, result.Title, short)
	if err := o.deliver(ctx, ev, text, logger); err != nil {
		return err
	}
	logger.Info("📝 form delivered", "form_id", result.FormID, "questions", result.Questions)

	if err := o.Store.RecordForm(ctx, &models.FormRecord{
		UserID:       ev.UserID,
		FormID:       result.FormID,
		Title:        result.Title,
		ResponderURI: result.ResponderURI,
		ShortURL:     short,
	}); err != nil {
		logger.Warn("failed to record form", "error", err)
	}
	return nil
}

// HandleText answers bot commands. Anything else is ignored.
func (o *Orchestrator) HandleText(ctx context.Context, ev models.TextEvent) error {
	fields := strings.Fields(ev.Text)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "/forms":
		records, err := o.Store.RecentForms(ctx, ev.UserID, 5)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return o.Messenger.Reply(ctx, ev.ReplyToken, msgNoForms)
		}
		var sb strings.Builder
		sb.WriteString(msgRecentForms)
		for _, r := range records {
			fmt.Fprintf(&sb, "\n%s %s", r.Title, r.ShortURL)
		}
		return o.Messenger.Reply(ctx, ev.ReplyToken, sb.String())
	case "/logout":
		if err := o.Store.DeleteToken(ctx, ev.UserID); err != nil {
			return err
		}
		o.Pending.Cancel(ev.UserID)
		o.Logger.Info("user logged out", "user_id", ev.UserID)
		return o.Messenger.Reply(ctx, ev.ReplyToken, msgLoggedOut)
	case "/help":
		return o.Messenger.Reply(ctx, ev.ReplyToken, msgHelp)
	}
	return nil
}

// deliver replies when the event still has a reply token and pushes otherwise
// (or when the token has expired by now).
func (o *Orchestrator) deliver(ctx context.Context, ev models.AudioEvent, text string, logger *slog.Logger) error {
	if ev.ReplyToken != "" {
		err := o.Messenger.Reply(ctx, ev.ReplyToken, text)
		if err == nil {
			return nil
		}
		logger.Debug("reply failed, falling back to push", "error", err)
	}
	return o.Messenger.Push(ctx, ev.UserID, text)
}

func (o *Orchestrator) push(ctx context.Context, userID, text string, logger *slog.Logger) {
	if err := o.Messenger.Push(ctx, userID, text); err != nil {
		logger.Warn("push failed", "error", err)
	}
}

// isRevoked reports whether err comes from Google refusing the refresh token.
func isRevoked(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.ErrorCode == "invalid_grant"
}

// PendingCount is reported by the health endpoint.
func (o *Orchestrator) PendingCount() int {
	return o.Pending.Len()
}
