// Package quiz holds the multiple-choice quiz state machine: a fixed ordered
// list of questions answered one at a time, forward only, scored once when
// the last question is answered.
package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidState is returned when an operation is not allowed in the
// session's current state.
var ErrInvalidState = errors.New("invalid quiz state")

// State is the externally visible phase of a quiz session.
type State int

const (
	// StateEmpty means no questions are loaded.
	StateEmpty State = iota
	// StateInProgress means at least one question remains unanswered.
	StateInProgress
	// StateCompleted means every question has been answered and scored.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Question is one quiz item. The JSON field names follow the backend's
// quiz payload.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_answer"`
}

// Validate reports whether q is a well-formed question: a prompt, at least
// one option, and a correct option equal to one of the options.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("question prompt is empty")
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("question %q has no options", q.Prompt)
	}
	for _, o := range q.Options {
		if o == q.CorrectOption {
			return nil
		}
	}
	return fmt.Errorf("question %q: correct answer %q is not among the options", q.Prompt, q.CorrectOption)
}

// Decode parses the backend's quiz_data payload, a JSON array of questions
// delivered as a string, and validates every question.
func Decode(quizData string) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal([]byte(quizData), &questions); err != nil {
		return nil, fmt.Errorf("parse quiz data: %w", err)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return questions, nil
}

// OptionLabel returns the letter shown next to option i: A, B, C, ...
func OptionLabel(i int) string {
	if i < 0 {
		return "?"
	}
	if i < 26 {
		return string(rune('A' + i))
	}
	return OptionLabel(i/26-1) + OptionLabel(i%26)
}

// Session tracks progress through one loaded question list. The zero value
// is an empty session ready for Load. Session is not safe for concurrent
// use; callers that share one serialize access themselves.
type Session struct {
	questions []Question
	current   int
	answers   []string
	completed bool
	score     int
	loaded    bool
}

// Load replaces all state with a fresh run over questions. Any answers
// recorded so far are discarded. An empty list is accepted and leaves the
// session with nothing to answer.
func (s *Session) Load(questions []Question) {
	*s = Session{
		questions: copyQuestions(questions),
		answers:   []string{},
		loaded:    true,
	}
}

// SubmitAnswer records answer for the current question. The answer is kept
// verbatim and is not checked against the options. Answering the last
// question completes the session and computes the score. It fails with
// ErrInvalidState when no questions are loaded or the session is already
// completed; the session is left unchanged in that case.
func (s *Session) SubmitAnswer(answer string) error {
	if s.completed {
		return fmt.Errorf("submit answer: quiz already completed: %w", ErrInvalidState)
	}
	if len(s.questions) == 0 {
		return fmt.Errorf("submit answer: no questions loaded: %w", ErrInvalidState)
	}

	s.answers = append(s.answers, answer)
	if s.current < len(s.questions)-1 {
		s.current++
		return nil
	}

	score := 0
	for i, a := range s.answers {
		if a == s.questions[i].CorrectOption {
			score++
		}
	}
	s.score = score
	s.completed = true
	return nil
}

// Reset returns the session to the empty state. The previous question set
// is not kept.
func (s *Session) Reset() {
	*s = Session{}
}

// State reports the session's phase.
func (s *Session) State() State {
	switch {
	case s.completed:
		return StateCompleted
	case len(s.questions) > 0:
		return StateInProgress
	default:
		return StateEmpty
	}
}

// Loaded reports whether Load has been called since construction or the
// last Reset.
func (s *Session) Loaded() bool { return s.loaded }

// Len returns the number of loaded questions.
func (s *Session) Len() int { return len(s.questions) }

// CurrentIndex returns the index of the question being presented.
func (s *Session) CurrentIndex() int { return s.current }

// Current returns the question being presented. ok is false when the session
// is empty or completed.
func (s *Session) Current() (q Question, ok bool) {
	if s.completed || len(s.questions) == 0 {
		return Question{}, false
	}
	q = s.questions[s.current]
	q.Options = append([]string(nil), q.Options...)
	return q, true
}

// Questions returns a copy of the loaded questions.
func (s *Session) Questions() []Question {
	return copyQuestions(s.questions)
}

func copyQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// Answers returns a copy of the answers submitted so far.
func (s *Session) Answers() []string {
	out := make([]string, len(s.answers))
	copy(out, s.answers)
	return out
}

// Completed reports whether every question has been answered.
func (s *Session) Completed() bool { return s.completed }

// Score returns the number of correct answers. It is only meaningful once
// the session is completed and is zero before that.
func (s *Session) Score() int { return s.score }

// Percent returns the score as a rounded percentage of the question count.
func (s *Session) Percent() int {
	if !s.completed || len(s.questions) == 0 {
		return 0
	}
	return int(math.Round(float64(s.score) / float64(len(s.questions)) * 100))
}

// Snapshot is a read-only copy of a session for presentation.
type Snapshot struct {
	State        State
	Questions    []Question
	CurrentIndex int
	Answers      []string
	Score        int
	Percent      int
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		State:        s.State(),
		Questions:    s.Questions(),
		CurrentIndex: s.current,
		Answers:      s.Answers(),
		Score:        s.score,
		Percent:      s.Percent(),
	}
}

// Total returns the number of questions in the snapshot.
func (sn Snapshot) Total() int { return len(sn.Questions) }

// Current returns the question being presented, if any.
func (sn Snapshot) Current() (Question, bool) {
	if sn.State != StateInProgress || sn.CurrentIndex >= len(sn.Questions) {
		return Question{}, false
	}
	return sn.Questions[sn.CurrentIndex], true
}

// Progress returns the percentage of the progress bar for the question being
// presented, counting it as reached.
func (sn Snapshot) Progress() int {
	if len(sn.Questions) == 0 {
		return 0
	}
	return (sn.CurrentIndex + 1) * 100 / len(sn.Questions)
}
