// Package gemini is a small client for the Gemini REST API: file upload and
// JSON-mode content generation against an uploaded file.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

const apiVersion = "v1beta"

// File is an uploaded artifact the model can read.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

// Client talks to generativelanguage.googleapis.com.
type Client struct {
	apiKey       string
	model        string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a client for the public endpoint.
func NewClient(apiKey, model string) *Client {
	return NewClientWithURL(apiKey, model, "https://generativelanguage.googleapis.com")
}

// NewClientWithURL lets tests point the client at an httptest server.
func NewClientWithURL(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{
		apiKey:       apiKey,
		model:        model,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		pollInterval: time.Second,
	}
}

// Model returns the model name used for generation.
func (c *Client) Model() string { return c.model }

// UploadFile sends the file at path using the resumable upload protocol and
// waits until Gemini reports it ACTIVE.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	meta, _ := json.Marshal(map[string]any{
		"file": map[string]string{"display_name": filepath.Base(path)},
	})
	startURL := fmt.Sprintf("%s/upload/%s/files?key=%s", c.baseURL, apiVersion, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, startURL, bytes.NewReader(meta))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.do(req)
	if err != nil {
		return nil, apperr.ExternalAPI("gemini upload start failed", err)
	}
	resp.Body.Close()
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, apperr.ExternalAPI("gemini upload start returned no upload URL", nil)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.ContentLength = int64(len(data))

	var uploaded struct {
		File File `json:"file"`
	}
	if err := c.doJSON(req, &uploaded); err != nil {
		return nil, apperr.ExternalAPI("gemini upload failed", err)
	}
	if uploaded.File.Name == "" || uploaded.File.URI == "" {
		return nil, apperr.ExternalAPI("gemini upload returned no file", nil)
	}
	if uploaded.File.MimeType == "" {
		uploaded.File.MimeType = mimeType
	}
	return c.waitActive(ctx, &uploaded.File)
}

// waitActive polls the file until processing finishes.
func (c *Client) waitActive(ctx context.Context, f *File) (*File, error) {
	for f.State == "PROCESSING" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/%s/%s?key=%s", c.baseURL, apiVersion, f.Name, c.apiKey), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		var next File
		if err := c.doJSON(req, &next); err != nil {
			return nil, apperr.ExternalAPI("gemini file status failed", err)
		}
		if next.MimeType == "" {
			next.MimeType = f.MimeType
		}
		f = &next
	}
	if f.State == "FAILED" {
		return nil, apperr.ExternalAPI("gemini could not process "+f.Name, nil)
	}
	return f, nil
}

// DeleteFile removes an uploaded file. Files expire on their own, so callers
// usually just log a failure.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/%s/%s?key=%s", c.baseURL, apiVersion, name, c.apiKey), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return apperr.ExternalAPI("gemini delete file failed", err)
	}
	resp.Body.Close()
	return nil
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// GenerateJSON asks the model to answer prompt about f in JSON and returns the
// text with any markdown code fence removed. The text is not validated here.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, f *File) (string, error) {
	body, err := json.Marshal(request{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{FileData: &fileData{MimeType: f.MimeType, FileURI: f.URI}},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.2,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, apiVersion, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result response
	if err := c.doJSON(req, &result); err != nil {
		return "", apperr.ExternalAPI("gemini generateContent failed", err)
	}
	if result.Error != nil {
		return "", apperr.ExternalAPI("gemini error: "+result.Error.Message, nil)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", apperr.MalformedAI("empty response from gemini", nil)
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return StripFences(sb.String()), nil
}

// StripFences removes a surrounding ```json ... ``` block.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
