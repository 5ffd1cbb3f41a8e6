package store

import (
	"testing"
	"time"

	"github.com/pavelanni/sahayak/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestResult(t *testing.T, s *Store, sessionID string, score, total int, at time.Time) {
	t.Helper()
	percent := 0
	if total > 0 {
		percent = score * 100 / total
	}
	err := s.RecordQuizResult(model.QuizResult{
		SessionID:   sessionID,
		Total:       total,
		Score:       score,
		Percent:     percent,
		CompletedAt: at,
		Answers: []model.Answer{
			{Question: "2+2?", Given: "4", Correct: "4"},
		},
	})
	if err != nil {
		t.Fatalf("insertTestResult: %v", err)
	}
}

func TestSources(t *testing.T) {
	s := newTestStore(t)

	count, err := s.SourceCount()
	if err != nil {
		t.Fatalf("SourceCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 sources, got %d", count)
	}

	src, err := s.GetSource("missing")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if src != nil {
		t.Fatalf("expected nil source, got %+v", src)
	}

	if err := s.RecordSource(model.Source{SessionID: "s1", Kind: "page", Label: "https://example.com"}); err != nil {
		t.Fatalf("RecordSource: %v", err)
	}
	// Same session again keeps the first row.
	if err := s.RecordSource(model.Source{SessionID: "s1", Kind: "video", Label: "other"}); err != nil {
		t.Fatalf("RecordSource duplicate: %v", err)
	}

	src, err = s.GetSource("s1")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if src == nil || src.Kind != "page" || src.Label != "https://example.com" {
		t.Fatalf("unexpected source: %+v", src)
	}
	if src.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	count, _ = s.SourceCount()
	if count != 1 {
		t.Errorf("expected 1 source, got %d", count)
	}
}

func TestQuizResults(t *testing.T) {
	s := newTestStore(t)

	results, err := s.ListResults(time.Time{})
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty list, got %d", len(results))
	}

	if err := s.RecordSource(model.Source{SessionID: "s1", Kind: "document", Label: "notes.pdf"}); err != nil {
		t.Fatalf("RecordSource: %v", err)
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insertTestResult(t, s, "s1", 2, 3, base)
	insertTestResult(t, s, "s2", 1, 1, base.Add(time.Hour))

	results, err = s.ListResults(time.Time{})
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.SessionID != "s1" || first.Source != "notes.pdf" {
		t.Errorf("unexpected first result: %+v", first)
	}
	if first.ID == "" {
		t.Error("expected generated id")
	}
	if first.Score != 2 || first.Total != 3 || first.Percent != 66 {
		t.Errorf("score = %d/%d (%d%%)", first.Score, first.Total, first.Percent)
	}
	if len(first.Answers) != 1 || first.Answers[0].Given != "4" {
		t.Errorf("answers = %+v", first.Answers)
	}
	if !first.CompletedAt.Equal(base) {
		t.Errorf("completed_at = %v, want %v", first.CompletedAt, base)
	}
	if results[1].Source != "" {
		t.Errorf("result without source should have empty label, got %q", results[1].Source)
	}

	since, err := s.ListResults(base.Add(30 * time.Minute))
	if err != nil {
		t.Fatalf("ListResults since: %v", err)
	}
	if len(since) != 1 || since[0].SessionID != "s2" {
		t.Errorf("since filter returned %+v", since)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.ExportResults(time.Time{})
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Errorf("expected empty non-nil results, got %v", empty.Results)
	}
	if empty.Summary.Quizzes != 0 || empty.Summary.AveragePercent != 0 {
		t.Errorf("unexpected summary: %+v", empty.Summary)
	}

	_ = s.RecordSource(model.Source{SessionID: "s1", Kind: "page"})
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insertTestResult(t, s, "s1", 1, 2, base)
	insertTestResult(t, s, "s1", 3, 3, base.Add(24*time.Hour))

	exp, err := s.ExportResults(time.Time{})
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if exp.Sources != 1 {
		t.Errorf("sources = %d", exp.Sources)
	}
	want := model.ExportSummary{Quizzes: 2, Questions: 5, Correct: 4, AveragePercent: 75}
	if exp.Summary != want {
		t.Errorf("summary = %+v, want %+v", exp.Summary, want)
	}
	if exp.Since != "" {
		t.Errorf("since = %q", exp.Since)
	}

	exp, err = s.ExportResults(base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ExportResults since: %v", err)
	}
	if exp.Since != "2026-03-01" {
		t.Errorf("since = %q", exp.Since)
	}
	if exp.Summary.Quizzes != 1 || exp.Summary.AveragePercent != 100 {
		t.Errorf("summary = %+v", exp.Summary)
	}
}
