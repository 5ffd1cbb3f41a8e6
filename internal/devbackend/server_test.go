package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/sahayak/internal/backend"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
)

type fakeEngine struct {
	mu          sync.Mutex
	lastTitle   string
	lastContent string
	lastHistory []model.ChatMessage
	lastN       int
	err         error
}

func (e *fakeEngine) Summarize(ctx context.Context, title, content string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTitle, e.lastContent = title, content
	return "Summary of " + title, e.err
}

func (e *fakeEngine) Answer(ctx context.Context, content string, history []model.ChatMessage, question string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastContent, e.lastHistory = content, history
	return "Answer to " + question, e.err
}

func (e *fakeEngine) GenerateQuiz(ctx context.Context, content string, n int) ([]quiz.Question, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastN = n
	if e.err != nil {
		return nil, e.err
	}
	return []quiz.Question{{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"}}, nil
}

// newTestService starts the service and returns a client speaking the
// real wire protocol to it.
func newTestService(t *testing.T, eng *fakeEngine, opts Options) (*Server, *backend.Client) {
	t.Helper()
	opts.Engine = eng
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	client, err := backend.New(backend.Options{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	return srv, client
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without an engine")
	}
}

func TestDocumentSession(t *testing.T) {
	eng := &fakeEngine{}
	_, c := newTestService(t, eng, Options{NumQuestions: 3})
	ctx := context.Background()

	id, err := c.ProcessDocument(ctx, "cells.md", strings.NewReader("# Cells\nCells divide by mitosis."))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	summary, err := c.GenerateSummary(ctx, id)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if summary != "Summary of cells.md" {
		t.Errorf("summary = %q", summary)
	}
	if eng.lastContent != "# Cells\nCells divide by mitosis." {
		t.Errorf("engine content = %q", eng.lastContent)
	}

	questions, err := c.GenerateQuiz(ctx, id)
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if len(questions) != 1 || questions[0].CorrectOption != "4" {
		t.Errorf("questions = %+v", questions)
	}
	if eng.lastN != 3 {
		t.Errorf("engine asked for %d questions, want 3", eng.lastN)
	}
}

func TestChatKeepsHistory(t *testing.T) {
	eng := &fakeEngine{}
	_, c := newTestService(t, eng, Options{})
	ctx := context.Background()

	id, err := c.ProcessDocument(ctx, "notes.txt", strings.NewReader("Osmosis notes"))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	for i, q := range []string{"first?", "second?"} {
		got, err := c.Chat(ctx, id, q)
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if got != "Answer to "+q {
			t.Errorf("reply = %q", got)
		}
		if len(eng.lastHistory) != 2*i {
			t.Errorf("history before query %d has %d messages, want %d", i, len(eng.lastHistory), 2*i)
		}
	}

	_, err = c.Chat(ctx, id, "  ")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("empty query error = %v, want APIError", err)
	}
}

func TestApplicationErrors(t *testing.T) {
	eng := &fakeEngine{}
	_, c := newTestService(t, eng, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{"pdf", func() error {
			_, err := c.ProcessDocument(ctx, "book.pdf", strings.NewReader("%PDF-1.7"))
			return err
		}, "Only plain text"},
		{"binary", func() error {
			_, err := c.ProcessDocument(ctx, "blob", strings.NewReader("\x00\x01\x02\x03"))
			return err
		}, "Only plain text"},
		{"empty text", func() error {
			_, err := c.ProcessDocument(ctx, "empty.txt", strings.NewReader("   \n"))
			return err
		}, "No readable text"},
		{"video", func() error {
			_, err := c.ProcessVideo(ctx, "https://youtu.be/abc")
			return err
		}, "Video transcripts are not supported"},
		{"bad url", func() error {
			_, err := c.ProcessURL(ctx, "ftp://example.com")
			return err
		}, "valid http(s) URL"},
		{"unknown session", func() error {
			_, err := c.Chat(ctx, "missing", "hi")
			return err
		}, "Session not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *backend.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want APIError", err)
			}
			if !strings.Contains(apiErr.Message, tt.want) {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.want)
			}
		})
	}
}

func TestEngineFailure(t *testing.T) {
	eng := &fakeEngine{}
	_, c := newTestService(t, eng, Options{})
	ctx := context.Background()

	id, err := c.ProcessDocument(ctx, "notes.txt", strings.NewReader("text"))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	eng.err = errors.New("model overloaded")

	if _, err := c.GenerateQuiz(ctx, id); err == nil {
		t.Error("expected quiz error")
	}
	_, err = c.Chat(ctx, id, "hi")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Failed to generate a response" {
		t.Errorf("chat error = %v", err)
	}
}

func TestProcessURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><head><title>Osmosis</title><style>p{}</style></head>
<body><nav>Home</nav><h1>Osmosis</h1><p>Water   moves across a membrane.</p><script>x()</script></body></html>`)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "Plain notes")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(page.Close)

	eng := &fakeEngine{}
	_, c := newTestService(t, eng, Options{})
	ctx := context.Background()

	id, err := c.ProcessURL(ctx, page.URL+"/article")
	if err != nil {
		t.Fatalf("ProcessURL: %v", err)
	}
	if _, err := c.GenerateSummary(ctx, id); err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if eng.lastTitle != "Osmosis" || eng.lastContent != "Osmosis\nWater moves across a membrane." {
		t.Errorf("title %q content %q", eng.lastTitle, eng.lastContent)
	}

	id, err = c.ProcessURL(ctx, page.URL+"/plain")
	if err != nil {
		t.Fatalf("ProcessURL plain: %v", err)
	}
	if _, err := c.GenerateSummary(ctx, id); err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if eng.lastContent != "Plain notes" || !strings.HasPrefix(eng.lastTitle, "127.0.0.1") {
		t.Errorf("title %q content %q", eng.lastTitle, eng.lastContent)
	}

	if _, err := c.ProcessURL(ctx, page.URL+"/missing"); err == nil {
		t.Error("expected error for a 404 page")
	}
}

func TestSessionLimitAndTruncation(t *testing.T) {
	eng := &fakeEngine{}
	srv, c := newTestService(t, eng, Options{MaxSessions: 2, MaxContentBytes: 2})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.ProcessDocument(ctx, "n.txt", strings.NewReader("héllo world"))
		if err != nil {
			t.Fatalf("ProcessDocument: %v", err)
		}
		ids = append(ids, id)
	}
	if n := srv.SessionCount(); n != 2 {
		t.Errorf("SessionCount() = %d, want 2", n)
	}

	if _, err := c.GenerateSummary(ctx, ids[2]); err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	// "é" occupies bytes 1 and 2; the cut must not split it.
	if eng.lastContent != "h" {
		t.Errorf("content = %q, want %q", eng.lastContent, "h")
	}
}
