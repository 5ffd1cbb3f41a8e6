package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/sahayak/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		total INTEGER NOT NULL,
		score INTEGER NOT NULL,
		percent INTEGER NOT NULL,
		answers TEXT NOT NULL DEFAULT '[]',
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_results_completed ON quiz_results(completed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSource stores the content a learning session was created from.
// Recording the same session twice keeps the first row.
func (s *Store) RecordSource(src model.Source) error {
	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO sources (session_id, kind, label, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		src.SessionID, src.Kind, src.Label, createdAt.UTC(),
	)
	return err
}

// GetSource returns the source for a session, or nil if none was recorded.
func (s *Store) GetSource(sessionID string) (*model.Source, error) {
	var src model.Source
	err := s.db.QueryRow(
		`SELECT session_id, kind, label, created_at FROM sources WHERE session_id = ?`, sessionID,
	).Scan(&src.SessionID, &src.Kind, &src.Label, &src.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// SourceCount returns the number of recorded sources.
func (s *Store) SourceCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// RecordQuizResult stores a completed quiz run.
func (s *Store) RecordQuizResult(r model.QuizResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}
	answers := r.Answers
	if answers == nil {
		answers = []model.Answer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO quiz_results (id, session_id, total, score, percent, answers, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Total, r.Score, r.Percent, string(data), r.CompletedAt.UTC(),
	)
	return err
}

// ListResults returns quiz results completed at or after since, oldest first.
// A zero since returns everything.
func (s *Store) ListResults(since time.Time) ([]model.QuizResult, error) {
	query := `SELECT r.id, r.session_id, COALESCE(src.label, ''), r.total, r.score, r.percent, r.answers, r.completed_at
		FROM quiz_results r LEFT JOIN sources src ON src.session_id = r.session_id`
	var args []any
	if !since.IsZero() {
		query += ` WHERE r.completed_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY r.completed_at, r.id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		var r model.QuizResult
		var answers string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Source, &r.Total, &r.Score, &r.Percent, &answers, &r.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for result %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
