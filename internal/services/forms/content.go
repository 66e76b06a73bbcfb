package forms

import (
	"encoding/json"
	"fmt"
	"strings"

	formsapi "google.golang.org/api/forms/v1"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// The model answers in the shape of the Forms API itself. These types cover
// only the parts the bot accepts.
type titleDoc struct {
	Info *struct {
		Title         string `json:"title"`
		DocumentTitle string `json:"documentTitle"`
	} `json:"info"`
}

type contentDoc struct {
	Requests *[]struct {
		CreateItem *struct {
			Item struct {
				Title        string `json:"title"`
				QuestionItem *struct {
					Question struct {
						Required     bool `json:"required"`
						TextQuestion *struct {
							Paragraph bool `json:"paragraph"`
						} `json:"textQuestion"`
						ChoiceQuestion *struct {
							Type    string `json:"type"`
							Options []struct {
								Value string `json:"value"`
							} `json:"options"`
							Shuffle bool `json:"shuffle"`
						} `json:"choiceQuestion"`
					} `json:"question"`
				} `json:"questionItem"`
			} `json:"item"`
		} `json:"createItem"`
	} `json:"requests"`
}

var choiceTypes = map[string]bool{"RADIO": true, "CHECKBOX": true, "DROP_DOWN": true}

// ParseTitle decodes the title document. The two titles must agree: an empty
// documentTitle takes the title, and different non-empty values are rejected.
func ParseTitle(text string) (models.FormSpec, error) {
	var doc titleDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return models.FormSpec{}, apperr.MalformedAI("title document is not JSON", err)
	}
	if doc.Info == nil {
		return models.FormSpec{}, apperr.MalformedAI("title document has no info", nil)
	}

	spec := models.FormSpec{
		Title:         strings.TrimSpace(doc.Info.Title),
		DocumentTitle: strings.TrimSpace(doc.Info.DocumentTitle),
	}
	if spec.Title == "" {
		return models.FormSpec{}, apperr.MalformedAI("title document has an empty title", nil)
	}
	if spec.DocumentTitle == "" {
		spec.DocumentTitle = spec.Title
	}
	if spec.DocumentTitle != spec.Title {
		return models.FormSpec{}, apperr.MalformedAI(
			fmt.Sprintf("title %q and documentTitle %q differ", spec.Title, spec.DocumentTitle), nil)
	}
	return spec, nil
}

// ParseContent decodes the question document. Indices come from item order,
// whatever the model wrote in location.index.
func ParseContent(text string) (models.FormContent, error) {
	var doc contentDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return models.FormContent{}, apperr.MalformedAI("content document is not JSON", err)
	}
	if doc.Requests == nil {
		return models.FormContent{}, apperr.MalformedAI("content document has no requests", nil)
	}

	content := models.FormContent{Questions: make([]models.Question, 0, len(*doc.Requests))}
	for i, req := range *doc.Requests {
		if req.CreateItem == nil || req.CreateItem.Item.QuestionItem == nil {
			return models.FormContent{}, apperr.MalformedAI(fmt.Sprintf("request %d is not a question createItem", i), nil)
		}
		item := req.CreateItem.Item
		q := item.QuestionItem.Question

		question := models.Question{
			Title:    strings.TrimSpace(item.Title),
			Required: q.Required,
			Index:    len(content.Questions),
		}
		switch {
		case q.ChoiceQuestion != nil && q.TextQuestion == nil:
			ct := strings.ToUpper(strings.TrimSpace(q.ChoiceQuestion.Type))
			if ct == "" {
				ct = "RADIO"
			}
			if !choiceTypes[ct] {
				return models.FormContent{}, apperr.MalformedAI(fmt.Sprintf("request %d has choice type %q", i, q.ChoiceQuestion.Type), nil)
			}
			for _, opt := range q.ChoiceQuestion.Options {
				if v := strings.TrimSpace(opt.Value); v != "" {
					question.Options = append(question.Options, v)
				}
			}
			if len(question.Options) == 0 {
				return models.FormContent{}, apperr.MalformedAI(fmt.Sprintf("request %d is a choice question without options", i), nil)
			}
			question.Kind = models.QuestionChoice
			question.ChoiceType = ct
			question.Shuffle = q.ChoiceQuestion.Shuffle
		case q.TextQuestion != nil && q.ChoiceQuestion == nil:
			question.Kind = models.QuestionText
			question.Paragraph = q.TextQuestion.Paragraph
		default:
			return models.FormContent{}, apperr.MalformedAI(fmt.Sprintf("request %d must have exactly one of textQuestion or choiceQuestion", i), nil)
		}
		content.Questions = append(content.Questions, question)
	}
	return content, nil
}

// CreateRequests converts content into batchUpdate requests. The result is
// never nil so an empty form still sends "requests": [].
func CreateRequests(content models.FormContent) []*formsapi.Request {
	requests := make([]*formsapi.Request, 0, len(content.Questions))
	for i, q := range content.Questions {
		question := &formsapi.Question{Required: q.Required}
		switch q.Kind {
		case models.QuestionChoice:
			options := make([]*formsapi.Option, 0, len(q.Options))
			for _, v := range q.Options {
				options = append(options, &formsapi.Option{Value: v})
			}
			question.ChoiceQuestion = &formsapi.ChoiceQuestion{
				Type:    q.ChoiceType,
				Options: options,
				Shuffle: q.Shuffle,
			}
		default:
			question.TextQuestion = &formsapi.TextQuestion{Paragraph: q.Paragraph}
		}

		requests = append(requests, &formsapi.Request{
			CreateItem: &formsapi.CreateItemRequest{
				Item: &formsapi.Item{
					Title:        q.Title,
					QuestionItem: &formsapi.QuestionItem{Question: question},
				},
				// Index 0 is the zero value and would otherwise be dropped.
				Location: &formsapi.Location{Index: int64(i), ForceSendFields: []string{"Index"}},
			},
		})
	}
	return requests
}
