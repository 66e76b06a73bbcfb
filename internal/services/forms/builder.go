// Package forms turns a voice message into a Google Form.
//
// The builder asks Gemini two questions about the same uploaded audio (the
// title, then the questions), checks both answers, and only then touches the
// Forms API: create, batchUpdate, optionally publish, and get for the
// responder link. A form that fails after creation is deleted through Drive.
package forms

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	formsapi "google.golang.org/api/forms/v1"
	"google.golang.org/api/option"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/services/gemini"
)

// AI is the part of the Gemini client the builder uses.
type AI interface {
	UploadFile(ctx context.Context, path, mimeType string) (*gemini.File, error)
	GenerateJSON(ctx context.Context, prompt string, f *gemini.File) (string, error)
	DeleteFile(ctx context.Context, name string) error
}

// Options tune the builder. The client option slices are mainly for tests,
// which point the services at an httptest server.
type Options struct {
	Publish      bool
	FormsOptions []option.ClientOption
	DriveOptions []option.ClientOption
}

// Builder creates forms on behalf of one user per call.
type Builder struct {
	ai      AI
	prompts Prompts
	opts    Options
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(ai AI, prompts Prompts, opts Options, logger *slog.Logger) *Builder {
	return &Builder{ai: ai, prompts: prompts, opts: opts, logger: logger}
}

// Build interprets the mp3 at audioPath and creates the form with the user's
// credentials from ts.
func (b *Builder) Build(ctx context.Context, ts oauth2.TokenSource, audioPath string) (*models.FormResult, error) {
	file, err := b.ai.UploadFile(ctx, audioPath, "audio/mpeg")
	if err != nil {
		return nil, err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := b.ai.DeleteFile(cleanupCtx, file.Name); err != nil {
			b.logger.Warn("failed to delete uploaded audio", "file", file.Name, "error", err)
		}
	}()

	titleText, err := b.ai.GenerateJSON(ctx, b.prompts.Title, file)
	if err != nil {
		return nil, err
	}
	contentText, err := b.ai.GenerateJSON(ctx, b.prompts.Content, file)
	if err != nil {
		return nil, err
	}

	// Both documents are checked before the first Forms API call, so bad
	// model output never leaves a form behind.
	spec, err := ParseTitle(titleText)
	if err != nil {
		return nil, err
	}
	content, err := ParseContent(contentText)
	if err != nil {
		return nil, err
	}

	return b.create(ctx, ts, spec, content)
}

func (b *Builder) create(ctx context.Context, ts oauth2.TokenSource, spec models.FormSpec, content models.FormContent) (*models.FormResult, error) {
	svc, err := formsapi.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, b.opts.FormsOptions...)...)
	if err != nil {
		return nil, apperr.ExternalAPI("failed to create forms client", err)
	}

	created, err := svc.Forms.Create(&formsapi.Form{
		Info: &formsapi.Info{Title: spec.Title, DocumentTitle: spec.DocumentTitle},
	}).Context(ctx).Do()
	if err != nil {
		return nil, apperr.ExternalAPI("failed to create form", err)
	}
	formID := created.FormId
	b.logger.Info("form created", "form_id", formID, "title", spec.Title)

	result, err := b.populate(ctx, svc, formID, content)
	if err != nil {
		b.rollback(ctx, ts, formID)
		return nil, err
	}
	result.Title = spec.Title
	return result, nil
}

func (b *Builder) populate(ctx context.Context, svc *formsapi.Service, formID string, content models.FormContent) (*models.FormResult, error) {
	_, err := svc.Forms.BatchUpdate(formID, &formsapi.BatchUpdateFormRequest{
		Requests:        CreateRequests(content),
		ForceSendFields: []string{"Requests"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, apperr.ExternalAPI("failed to add questions", err)
	}

	if b.opts.Publish {
		_, err = svc.Forms.SetPublishSettings(formID, &formsapi.SetPublishSettingsRequest{
			PublishSettings: &formsapi.PublishSettings{
				PublishState: &formsapi.PublishState{IsPublished: true, IsAcceptingResponses: true},
			},
			UpdateMask: "publish_state",
		}).Context(ctx).Do()
		if err != nil {
			return nil, apperr.ExternalAPI("failed to publish form", err)
		}
	}

	form, err := svc.Forms.Get(formID).Context(ctx).Do()
	if err != nil {
		return nil, apperr.ExternalAPI("failed to get form", err)
	}
	if form.ResponderUri == "" {
		return nil, apperr.ExternalAPI("form "+formID+" has no responderUri", nil)
	}

	return &models.FormResult{
		FormID:       formID,
		ResponderURI: form.ResponderUri,
		Questions:    len(content.Questions),
	}, nil
}

// rollback deletes a half-built form. It runs even if ctx was cancelled.
func (b *Builder) rollback(ctx context.Context, ts oauth2.TokenSource, formID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	svc, err := drive.NewService(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, b.opts.DriveOptions...)...)
	if err == nil {
		err = svc.Files.Delete(formID).Context(ctx).Do()
	}
	if err != nil {
		b.logger.Error("failed to delete partial form", "form_id", formID, "error", err)
		return
	}
	b.logger.Info("deleted partial form", "form_id", formID)
}
