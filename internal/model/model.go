package model

import (
	"context"
	"time"
)

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Role represents a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a learning session's chat transcript.
type ChatMessage struct {
	ID      int       `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Source describes the content a learning session was created from.
type Source struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// UIConfig holds runtime parameters for the web interface set via CLI flags.
type UIConfig struct {
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/learn")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	MaxUploadMB   int           // Upper bound for document uploads
	SessionTTL    time.Duration // Idle time after which a visitor's workspace is dropped
}

// QuizResult is a completed quiz run.
type QuizResult struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Source      string    `json:"source,omitempty"`
	Total       int       `json:"total"`
	Score       int       `json:"score"`
	Percent     int       `json:"percent"`
	Answers     []Answer  `json:"answers"`
	CompletedAt time.Time `json:"completed_at"`
}

// Answer pairs a question with the submitted and correct options.
type Answer struct {
	Question string `json:"question"`
	Given    string `json:"given"`
	Correct  string `json:"correct"`
}
