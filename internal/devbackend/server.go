// Package devbackend is a local implementation of the content service for
// development. It keeps ingested material in memory and delegates
// generation to an Engine, normally an llm.Client.
package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	defaultNumQuestions    = 5
	defaultMaxContentBytes = 256 << 10
	defaultMaxSessions     = 100
	maxUploadBytes         = 20 << 20
	// Earlier turns sent with each chat query.
	maxHistory = 20
)

// Engine produces the generated content for a session.
type Engine interface {
	Summarize(ctx context.Context, title, content string) (string, error)
	Answer(ctx context.Context, content string, history []model.ChatMessage, question string) (string, error)
	GenerateQuiz(ctx context.Context, content string, n int) ([]quiz.Question, error)
}

// Options configures a Server.
type Options struct {
	Engine          Engine
	NumQuestions    int
	MaxContentBytes int
	MaxSessions     int
	// HTTPClient fetches pages for /process-url.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type contentSession struct {
	title   string
	content string
	history []model.ChatMessage
	created time.Time
}

// Server serves the content service endpoints.
type Server struct {
	engine          Engine
	numQuestions    int
	maxContentBytes int
	maxSessions     int
	httpClient      *http.Client
	logger          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*contentSession
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Server{
		engine:          opts.Engine,
		numQuestions:    opts.NumQuestions,
		maxContentBytes: opts.MaxContentBytes,
		maxSessions:     opts.MaxSessions,
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		sessions:        make(map[string]*contentSession),
	}
	if s.numQuestions <= 0 {
		s.numQuestions = defaultNumQuestions
	}
	if s.maxContentBytes <= 0 {
		s.maxContentBytes = defaultMaxContentBytes
	}
	if s.maxSessions <= 0 {
		s.maxSessions = defaultMaxSessions
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Routes returns the service router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reply{Status: statusSuccess})
	})
	r.Post("/process-pdf", s.handleDocument)
	r.Post("/process-url", s.handleURL)
	r.Post("/process-youtube", s.handleVideo)
	r.Post("/chat", s.handleChat)
	r.Post("/generate-summary", s.handleSummary)
	r.Post("/generate-quiz", s.handleQuiz)
	return r
}

// SessionCount returns the number of stored content sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type reply struct {
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
	Query     string `json:"query,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write reply", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, reply{Status: statusError, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// store saves content under a new session ID, evicting the oldest session
// when the limit is reached.
func (s *Server) store(title, content string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.sessions) >= s.maxSessions {
		var oldestID string
		var oldest time.Time
		for k, cs := range s.sessions {
			if oldestID == "" || cs.created.Before(oldest) {
				oldestID, oldest = k, cs.created
			}
		}
		delete(s.sessions, oldestID)
	}
	s.sessions[id] = &contentSession{title: title, content: content, created: time.Now()}
	return id
}

// lookup returns a copy of the session safe to use without the lock.
func (s *Server) lookup(id string) (contentSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return contentSession{}, false
	}
	c := *cs
	c.history = append([]model.ChatMessage(nil), cs.history...)
	return c, true
}

func (s *Server) appendHistory(id string, msgs ...model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return
	}
	cs.history = append(cs.history, msgs...)
	if len(cs.history) > maxHistory {
		cs.history = append([]model.ChatMessage(nil), cs.history[len(cs.history)-maxHistory:]...)
	}
}

// truncate cuts content to the configured size on a rune boundary.
func (s *Server) truncate(content string) string {
	if len(content) <= s.maxContentBytes {
		return content
	}
	cut := s.maxContentBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func (s *Server) ingest(w http.ResponseWriter, title, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "No readable text found in the source"})
		return
	}
	id := s.store(title, s.truncate(content))
	s.logger.Info("content session created", "session_id", id, "title", title, "bytes", len(content))
	writeJSON(w, http.StatusOK, reply{Status: statusSuccess, SessionID: id})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read the uploaded file")
		return
	}

	if !isText(header.Filename, data) {
		writeJSON(w, http.StatusOK, reply{
			Status:  statusError,
			Message: "Only plain text and Markdown documents are supported by the development backend",
		})
		return
	}
	s.ingest(w, header.Filename, string(data))
}

// isText accepts text-like extensions and content that is valid UTF-8.
func isText(filename string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".text", ".csv", ".html", ".htm":
	case ".pdf", ".doc", ".docx":
		return false
	default:
		ct, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		if !strings.HasPrefix(ct, "text/") {
			return false
		}
	}
	return utf8.Valid(data)
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Please enter a valid http(s) URL"})
		return
	}

	title, text, err := s.fetchPage(r.Context(), u.String())
	if err != nil {
		s.logger.Warn("page fetch failed", "url", u.String(), "error", err)
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Could not fetch the web page"})
		return
	}
	if title == "" {
		title = u.Host
	}
	s.ingest(w, title, text)
}

func (s *Server) fetchPage(ctx context.Context, pageURL string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, int64(s.maxContentBytes)*4)
	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct == "text/plain" {
		data, err := io.ReadAll(body)
		return "", string(data), err
	}
	return ExtractText(body)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, reply{
		Status:  statusError,
		Message: "Video transcripts are not supported by the development backend",
	})
}

// session decodes the request and resolves its content session, writing an
// error reply when either fails.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (sessionRequest, contentSession, bool) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return req, contentSession{}, false
	}
	cs, ok := s.lookup(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found. Please upload the content again.")
		return req, contentSession{}, false
	}
	return req, cs, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, cs, ok := s.session(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Query is required"})
		return
	}

	answer, err := s.engine.Answer(r.Context(), cs.content, cs.history, req.Query)
	if err != nil {
		s.logger.Error("chat failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Failed to generate a response"})
		return
	}
	now := time.Now()
	s.appendHistory(req.SessionID,
		model.ChatMessage{Role: model.RoleUser, Content: req.Query, At: now},
		model.ChatMessage{Role: model.RoleAssistant, Content: answer, At: now},
	)
	writeJSON(w, http.StatusOK, reply{Status: statusSuccess, Response: answer})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, cs, ok := s.session(w, r)
	if !ok {
		return
	}
	summary, err := s.engine.Summarize(r.Context(), cs.title, cs.content)
	if err != nil {
		s.logger.Error("summary failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Failed to generate a summary"})
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: statusSuccess, Summary: summary})
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	req, cs, ok := s.session(w, r)
	if !ok {
		return
	}
	questions, err := s.engine.GenerateQuiz(r.Context(), cs.content, s.numQuestions)
	if err != nil {
		s.logger.Error("quiz failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusOK, reply{Status: statusError, Message: "Failed to generate a quiz"})
		return
	}
	data, err := json.Marshal(questions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode the quiz")
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: statusSuccess, QuizData: string(data)})
}
