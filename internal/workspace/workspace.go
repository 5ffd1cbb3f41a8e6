// Package workspace holds the state of one learning session per visitor:
// the backend session identity, chat transcript, summary slot and quiz.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/sahayak/internal/backend"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
)

// Chat replies shown when the backend could not produce an answer.
const (
	chatFailureReply  = "Sorry, I encountered an error. Please try again."
	chatAPIErrorReply = "Error: "
)

var (
	// ErrNoSession is returned by operations that need an ingested source.
	ErrNoSession = errors.New("no learning session")
	// ErrEmptySource is returned when an ingestion request carries no file or URL.
	ErrEmptySource = errors.New("no file or URL provided")
	// ErrStaleAnswer is returned for an answer to a question that is no longer current.
	ErrStaleAnswer = errors.New("answer is for a question that is not current")
)

// Backend is the part of the backend client a workspace calls.
type Backend interface {
	ProcessDocument(ctx context.Context, filename string, r io.Reader) (string, error)
	Ingest(ctx context.Context, kind backend.SourceKind, url string) (string, error)
	Chat(ctx context.Context, sessionID, query string) (string, error)
	GenerateSummary(ctx context.Context, sessionID string) (string, error)
	GenerateQuiz(ctx context.Context, sessionID string) ([]quiz.Question, error)
}

// Recorder keeps history of sources and finished quizzes.
type Recorder interface {
	RecordSource(src model.Source) error
	RecordQuizResult(r model.QuizResult) error
}

// IngestRequest describes content to submit. Documents carry File and
// Filename; pages and videos carry URL.
type IngestRequest struct {
	Kind     backend.SourceKind
	URL      string
	Filename string
	File     io.Reader
}

func (req IngestRequest) label() string {
	if req.Kind == backend.SourceDocument {
		return req.Filename
	}
	return strings.TrimSpace(req.URL)
}

// Workspace is one visitor's learning session. All methods are safe for
// concurrent use; backend calls never run with the lock held.
type Workspace struct {
	backend  Backend
	recorder Recorder
	logger   *slog.Logger
	calls    singleflight.Group

	mu         sync.Mutex
	sessionID  string
	source     model.Source
	transcript []model.ChatMessage
	nextMsgID  int
	summary    string
	quiz       quiz.Session
	// In-flight backend calls per kind.
	ingests   int
	chats     int
	summaries int
	quizzes   int
	lastUsed  time.Time
}

// New returns an empty workspace. A nil recorder disables history.
func New(b Backend, rec Recorder, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{backend: b, recorder: rec, logger: logger, lastUsed: time.Now()}
}

func (w *Workspace) touch() { w.lastUsed = time.Now() }

// LastUsed reports when the workspace was last accessed.
func (w *Workspace) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// SessionID returns the current backend session, or "" before ingestion.
func (w *Workspace) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Ingest submits content to the backend. On success the workspace starts a
// fresh learning session; on failure it is left as it was and the error is
// returned for display.
func (w *Workspace) Ingest(ctx context.Context, req IngestRequest) error {
	switch req.Kind {
	case backend.SourceDocument:
		if req.File == nil || req.Filename == "" {
			return ErrEmptySource
		}
	case backend.SourcePage, backend.SourceVideo:
		if strings.TrimSpace(req.URL) == "" {
			return ErrEmptySource
		}
	default:
		return fmt.Errorf("unknown source kind %q", req.Kind)
	}

	w.mu.Lock()
	w.ingests++
	w.touch()
	w.mu.Unlock()

	var (
		id  string
		err error
	)
	if req.Kind == backend.SourceDocument {
		id, err = w.backend.ProcessDocument(ctx, req.Filename, req.File)
	} else {
		id, err = w.backend.Ingest(ctx, req.Kind, strings.TrimSpace(req.URL))
	}

	w.mu.Lock()
	w.ingests--
	if err != nil {
		w.mu.Unlock()
		w.logger.Warn("ingestion failed", "kind", req.Kind, "error", err)
		return err
	}
	src := model.Source{
		SessionID: id,
		Kind:      string(req.Kind),
		Label:     req.label(),
		CreatedAt: time.Now(),
	}
	w.sessionID = id
	w.source = src
	w.transcript = nil
	w.nextMsgID = 0
	w.summary = ""
	w.quiz.Reset()
	w.chats, w.summaries, w.quizzes = 0, 0, 0
	w.mu.Unlock()

	w.logger.Info("learning session started", "session_id", id, "kind", req.Kind)
	if w.recorder != nil {
		if err := w.recorder.RecordSource(src); err != nil {
			w.logger.Error("failed to record source", "session_id", id, "error", err)
		}
	}
	return nil
}

func (w *Workspace) appendMessage(role model.Role, content string) {
	w.nextMsgID++
	w.transcript = append(w.transcript, model.ChatMessage{
		ID:      w.nextMsgID,
		Role:    role,
		Content: content,
		At:      time.Now(),
	})
}

// Send appends the query to the transcript, asks the backend, and appends
// the reply, which it also returns. Blank queries are ignored. Backend
// failures become a synthetic assistant message; the returned error is only
// for missing sessions. The reply is empty when the query was blank or the
// session changed while waiting.
func (w *Workspace) Send(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	w.mu.Lock()
	sessionID := w.sessionID
	if sessionID == "" {
		w.mu.Unlock()
		return "", ErrNoSession
	}
	w.appendMessage(model.RoleUser, query)
	w.chats++
	w.touch()
	w.mu.Unlock()

	reply, err := w.backend.Chat(ctx, sessionID, query)
	if err != nil {
		w.logger.Warn("chat failed", "session_id", sessionID, "error", err)
		reply = chatReplyForError(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != sessionID {
		// Session changed while waiting; the reply belongs to the old one.
		return "", nil
	}
	w.chats--
	w.appendMessage(model.RoleAssistant, reply)
	return reply, nil
}

func chatReplyForError(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return chatAPIErrorReply + apiErr.Message
	}
	return chatFailureReply
}

// RegenerateSummary asks the backend for a summary and overwrites the slot.
// Concurrent calls for the same session share one backend request. Failures
// are logged and leave the previous summary in place.
func (w *Workspace) RegenerateSummary(ctx context.Context) {
	w.mu.Lock()
	sessionID := w.sessionID
	if sessionID == "" {
		w.mu.Unlock()
		return
	}
	w.summaries++
	w.touch()
	w.mu.Unlock()

	v, err, _ := w.calls.Do("summary:"+sessionID, func() (any, error) {
		return w.backend.GenerateSummary(ctx, sessionID)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != sessionID {
		return
	}
	w.summaries--
	if err != nil {
		w.logger.Error("error generating summary", "session_id", sessionID, "error", err)
		return
	}
	w.summary = v.(string)
}

// GenerateQuiz asks the backend for a quiz and loads it, replacing any quiz
// in progress. Concurrent calls for the same session share one backend
// request; of overlapping loads the last to complete wins. Failures are
// logged and leave the current quiz untouched.
func (w *Workspace) GenerateQuiz(ctx context.Context) {
	w.mu.Lock()
	sessionID := w.sessionID
	if sessionID == "" {
		w.mu.Unlock()
		return
	}
	w.quizzes++
	w.touch()
	w.mu.Unlock()

	v, err, _ := w.calls.Do("quiz:"+sessionID, func() (any, error) {
		return w.backend.GenerateQuiz(ctx, sessionID)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != sessionID {
		return
	}
	w.quizzes--
	if err != nil {
		w.logger.Error("error generating quiz", "session_id", sessionID, "error", err)
		return
	}
	w.quiz.Load(v.([]quiz.Question))
}

// Answer submits an answer to the current question. It returns
// quiz.ErrInvalidState when no question is awaiting an answer. When the
// answer completes the quiz the result is recorded.
func (w *Workspace) Answer(answer string) error {
	return w.submit(func() (string, error) { return answer, nil })
}

// AnswerOption submits option of question index. It returns ErrStaleAnswer
// when index is not the question being presented, which happens when a
// form or button is submitted twice.
func (w *Workspace) AnswerOption(index, option int) error {
	return w.submit(func() (string, error) {
		q, ok := w.quiz.Current()
		if !ok {
			return "", fmt.Errorf("answer: %w", quiz.ErrInvalidState)
		}
		if w.quiz.CurrentIndex() != index {
			return "", ErrStaleAnswer
		}
		if option < 0 || option >= len(q.Options) {
			return "", fmt.Errorf("option %d out of range", option)
		}
		return q.Options[option], nil
	})
}

// submit picks and records an answer under the lock, then records the
// result outside it if the quiz completed.
func (w *Workspace) submit(pick func() (string, error)) error {
	w.mu.Lock()
	w.touch()
	answer, err := pick()
	if err == nil {
		err = w.quiz.SubmitAnswer(answer)
	}
	if err != nil || !w.quiz.Completed() {
		w.mu.Unlock()
		return err
	}
	result := w.resultLocked()
	w.mu.Unlock()

	w.logger.Info("quiz completed", "session_id", result.SessionID, "score", result.Score, "total", result.Total)
	if w.recorder != nil {
		if err := w.recorder.RecordQuizResult(result); err != nil {
			w.logger.Error("failed to record quiz result", "session_id", result.SessionID, "error", err)
		}
	}
	return nil
}

func (w *Workspace) resultLocked() model.QuizResult {
	questions := w.quiz.Questions()
	given := w.quiz.Answers()
	answers := make([]model.Answer, len(questions))
	for i, q := range questions {
		answers[i] = model.Answer{Question: q.Prompt, Given: given[i], Correct: q.CorrectOption}
	}
	return model.QuizResult{
		SessionID:   w.sessionID,
		Source:      w.source.Label,
		Total:       len(questions),
		Score:       w.quiz.Score(),
		Percent:     w.quiz.Percent(),
		Answers:     answers,
		CompletedAt: time.Now(),
	}
}

// ResetQuiz discards the quiz and returns to the empty state.
func (w *Workspace) ResetQuiz() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.quiz.Reset()
}

// End forgets the learning session, returning the visitor to ingestion.
func (w *Workspace) End() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.sessionID = ""
	w.source = model.Source{}
	w.transcript = nil
	w.nextMsgID = 0
	w.summary = ""
	w.quiz.Reset()
	w.chats, w.summaries, w.quizzes = 0, 0, 0
}

// View is a point-in-time copy of a workspace for rendering.
type View struct {
	SessionID   string
	Source      model.Source
	Messages    []model.ChatMessage
	Summary     string
	Quiz        quiz.Snapshot
	Ingesting   bool
	Chatting    bool
	Summarizing bool
	Generating  bool
}

// Active reports whether a learning session exists.
func (v View) Active() bool { return v.SessionID != "" }

// ShortID returns the first eight characters of the session identity.
func (v View) ShortID() string {
	if len(v.SessionID) <= 8 {
		return v.SessionID
	}
	return v.SessionID[:8]
}

// View returns a snapshot of the workspace.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	msgs := make([]model.ChatMessage, len(w.transcript))
	copy(msgs, w.transcript)
	return View{
		SessionID:   w.sessionID,
		Source:      w.source,
		Messages:    msgs,
		Summary:     w.summary,
		Quiz:        w.quiz.Snapshot(),
		Ingesting:   w.ingests > 0,
		Chatting:    w.chats > 0,
		Summarizing: w.summaries > 0,
		Generating:  w.quizzes > 0,
	}
}
