// Package prompts renders the instructions sent to the language model.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// DefaultMaxContentRunes bounds the material placed into a prompt.
const DefaultMaxContentRunes = 60000

var documentTagRegex = regexp.MustCompile(`(?i)</?\s*(document|system-instructions)\b[^>]*>`)

// Kind names a prompt template.
type Kind string

const (
	Summary Kind = "summary"
	Chat    Kind = "chat"
	Quiz    Kind = "quiz"
)

var kinds = []Kind{Summary, Chat, Quiz}

// SummaryData holds template data for summary prompts.
type SummaryData struct {
	Title   string
	Content string
}

// ChatData holds template data for the chat system prompt.
type ChatData struct {
	Content string
}

// QuizData holds template data for quiz prompts.
type QuizData struct {
	Content      string
	NumQuestions int
}

// Set is a parsed group of prompt templates.
type Set struct {
	templates map[Kind]*template.Template
	// MaxContentRunes truncates material longer than this; 0 means the default.
	MaxContentRunes int
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the embedded prompt set, parsed once.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(templateFS)
	})
	return defaultSet, defaultErr
}

// Load parses templates/<kind>.txt for every prompt kind from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{templates: make(map[Kind]*template.Template, len(kinds))}
	for _, k := range kinds {
		file := "templates/" + string(k) + ".txt"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New(string(k)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		s.templates[k] = tmpl
	}
	return s, nil
}

// WithMaxContentRunes returns a copy of s that truncates material to n runes.
func (s *Set) WithMaxContentRunes(n int) *Set {
	c := *s
	c.MaxContentRunes = n
	return &c
}

func (s *Set) execute(k Kind, data any) (string, error) {
	if s == nil || s.templates == nil {
		return "", errors.New("prompt templates not loaded")
	}
	tmpl, ok := s.templates[k]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", k)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", k, err)
	}
	return buf.String(), nil
}

// BuildSummary renders the summary prompt for the material.
func (s *Set) BuildSummary(title, content string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Study material"
	}
	return s.execute(Summary, SummaryData{Title: title, Content: s.sanitize(content)})
}

// BuildChat renders the system prompt for answering questions about the material.
func (s *Set) BuildChat(content string) (string, error) {
	return s.execute(Chat, ChatData{Content: s.sanitize(content)})
}

// BuildQuiz renders the quiz prompt asking for n questions.
func (s *Set) BuildQuiz(content string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid number of questions: %d", n)
	}
	return s.execute(Quiz, QuizData{Content: s.sanitize(content), NumQuestions: n})
}

func (s *Set) sanitize(content string) string {
	limit := DefaultMaxContentRunes
	if s != nil && s.MaxContentRunes > 0 {
		limit = s.MaxContentRunes
	}
	return Sanitize(content, limit)
}

// Sanitize removes tags that could close the document block early and
// truncates content to limit runes.
func Sanitize(content string, limit int) string {
	content = documentTagRegex.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	if content == "" {
		return "[No content provided]"
	}

	if limit > 0 && utf8.RuneCountInString(content) > limit {
		runes := []rune(content)
		content = string(runes[:limit]) + "\n\n[Content truncated due to length]"
	}
	return content
}
