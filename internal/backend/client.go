// Package backend talks to the content/question service that ingests
// learning material and answers chat, summary and quiz requests for it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/sahayak/internal/quiz"
)

const (
	statusSuccess = "success"
	maxReplyBytes = 8 << 20
)

// SourceKind selects the ingestion endpoint.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourcePage     SourceKind = "page"
	SourceVideo    SourceKind = "video"
)

// ParseSourceKind converts a form or path value to a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case SourceDocument:
		return SourceDocument, nil
	case SourcePage:
		return SourcePage, nil
	case SourceVideo:
		return SourceVideo, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a thin JSON client for the service. It performs no retries.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client. BaseURL is required.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    opts.Timeout,
		httpClient: hc,
	}, nil
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string { return c.baseURL }

type envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Response  string `json:"response,omitempty"`
	Summary   string `json:"summary,omitempty"`
	QuizData  string `json:"quiz_data,omitempty"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// ProcessDocument uploads a document and returns the new session ID.
func (c *Client) ProcessDocument(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	env, err := c.do(ctx, "/process-pdf", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	return sessionIDFrom(env)
}

// ProcessURL ingests a web page and returns the new session ID.
func (c *Client) ProcessURL(ctx context.Context, url string) (string, error) {
	env, err := c.doJSON(ctx, "/process-url", urlRequest{URL: url})
	if err != nil {
		return "", err
	}
	return sessionIDFrom(env)
}

// ProcessVideo ingests a video by URL and returns the new session ID.
func (c *Client) ProcessVideo(ctx context.Context, url string) (string, error) {
	env, err := c.doJSON(ctx, "/process-youtube", urlRequest{URL: url})
	if err != nil {
		return "", err
	}
	return sessionIDFrom(env)
}

// Ingest dispatches a page or video URL to its endpoint. Documents go
// through ProcessDocument.
func (c *Client) Ingest(ctx context.Context, kind SourceKind, url string) (string, error) {
	switch kind {
	case SourcePage:
		return c.ProcessURL(ctx, url)
	case SourceVideo:
		return c.ProcessVideo(ctx, url)
	default:
		return "", fmt.Errorf("ingest %s: not a URL source", kind)
	}
}

// Chat sends one query and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, sessionID, query string) (string, error) {
	env, err := c.doJSON(ctx, "/chat", chatRequest{SessionID: sessionID, Query: query})
	if err != nil {
		return "", err
	}
	return env.Response, nil
}

// GenerateSummary asks for a fresh summary of the session's content.
func (c *Client) GenerateSummary(ctx context.Context, sessionID string) (string, error) {
	env, err := c.doJSON(ctx, "/generate-summary", sessionRequest{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return env.Summary, nil
}

// GenerateQuiz asks for a fresh question set for the session's content.
func (c *Client) GenerateQuiz(ctx context.Context, sessionID string) ([]quiz.Question, error) {
	env, err := c.doJSON(ctx, "/generate-quiz", sessionRequest{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	questions, err := quiz.Decode(env.QuizData)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	return questions, nil
}

func sessionIDFrom(env *envelope) (string, error) {
	if strings.TrimSpace(env.SessionID) == "" {
		return "", &APIError{Status: env.Status, Message: "service returned no session id"}
	}
	return env.SessionID, nil
}

func (c *Client) doJSON(ctx context.Context, path string, body any) (*envelope, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, path, "application/json", &buf)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) (*envelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s reply: %v", ErrTransport, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s reply: %v", ErrTransport, path, err)
	}
	if env.Status != statusSuccess {
		return nil, &APIError{Status: env.Status, Message: env.Message}
	}
	return &env, nil
}
