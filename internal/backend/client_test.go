package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "  "}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
	c, err := New(Options{BaseURL: "http://api.local/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "http://api.local" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestProcessDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process-pdf" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "notes.pdf" || string(data) != "%PDF-1.4 body" {
			t.Errorf("upload = %q %q", header.Filename, data)
		}
		writeJSON(t, w, map[string]string{"status": "success", "session_id": "abc123"})
	})

	id, err := c.ProcessDocument(context.Background(), "notes.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if id != "abc123" {
		t.Errorf("session id = %q", id)
	}
}

func TestIngestURLs(t *testing.T) {
	tests := []struct {
		kind SourceKind
		path string
	}{
		{SourcePage, "/process-url"},
		{SourceVideo, "/process-youtube"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("path = %q, want %q", r.URL.Path, tt.path)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("content type = %q", ct)
				}
				var body urlRequest
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode: %v", err)
					return
				}
				if body.URL != "https://example.com/a" {
					t.Errorf("url = %q", body.URL)
				}
				writeJSON(t, w, map[string]string{"status": "success", "session_id": "s-" + string(tt.kind)})
			})

			id, err := c.Ingest(context.Background(), tt.kind, "https://example.com/a")
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if id != "s-"+string(tt.kind) {
				t.Errorf("session id = %q", id)
			}
		})
	}
}

func TestIngestRejectsDocumentKind(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.Ingest(context.Background(), SourceDocument, "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplicationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"status": "error", "message": "could not fetch page"})
	})

	_, err := c.ProcessURL(context.Background(), "https://example.com")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "could not fetch page" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if UserMessage(err) != "could not fetch page" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestErrorEnvelopeOnNon2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":"error","message":"unsupported file"}`)
	})

	_, err := c.ProcessDocument(context.Background(), "a.pdf", strings.NewReader("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "unsupported file" {
		t.Fatalf("error = %v, want APIError(unsupported file)", err)
	}
}

func TestHTTPErrorWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.Chat(context.Background(), "s1", "hi")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
	if UserMessage(err) != "Processing failed. Please check the server." {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Chat(context.Background(), "s1", "hello")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if UserMessage(err) != "An unexpected error occurred." {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestMalformedReplyIsTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>oops</html>")
	})
	_, err := c.GenerateSummary(context.Background(), "s1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if body.SessionID != "s1" || body.Query != "what is osmosis?" {
			t.Errorf("body = %+v", body)
		}
		writeJSON(t, w, map[string]string{"status": "success", "response": "Diffusion of water."})
	})

	got, err := c.Chat(context.Background(), "s1", "what is osmosis?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Diffusion of water." {
		t.Errorf("response = %q", got)
	}
}

func TestGenerateSummary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-summary" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(t, w, map[string]string{"status": "success", "summary": "Key points."})
	})

	got, err := c.GenerateSummary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if got != "Key points." {
		t.Errorf("summary = %q", got)
	}
}

func TestGenerateQuiz(t *testing.T) {
	quizData := `[{"question":"2+2?","options":["3","4"],"correct_answer":"4"},` +
		`{"question":"Capital of France?","options":["Paris","Rome"],"correct_answer":"Paris"}]`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-quiz" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(t, w, map[string]string{"status": "success", "quiz_data": quizData})
	})

	qs, err := c.GenerateQuiz(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("len = %d, want 2", len(qs))
	}
	if qs[1].Prompt != "Capital of France?" || qs[1].CorrectOption != "Paris" {
		t.Errorf("question = %+v", qs[1])
	}
}

func TestGenerateQuizBadPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"status": "success", "quiz_data": "not json"})
	})
	if _, err := c.GenerateQuiz(context.Background(), "s1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMissingSessionID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"status": "success"})
	})
	_, err := c.ProcessURL(context.Background(), "https://example.com")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
}

func TestParseSourceKind(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceKind
		wantErr bool
	}{
		{"document", SourceDocument, false},
		{" Page ", SourcePage, false},
		{"video", SourceVideo, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSourceKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSourceKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}
