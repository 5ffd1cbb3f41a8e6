package store

import (
	"fmt"
	"math"
	"time"

	"github.com/pavelanni/sahayak/internal/model"
)

// ExportResults builds an export of all quiz results completed since the
// given time (zero for all).
func (s *Store) ExportResults(since time.Time) (model.ResultsExport, error) {
	results, err := s.ListResults(since)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list results: %w", err)
	}
	sources, err := s.SourceCount()
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("count sources: %w", err)
	}

	export := model.ResultsExport{
		GeneratedAt: time.Now().UTC(),
		Sources:     sources,
		Results:     results,
	}
	if export.Results == nil {
		export.Results = []model.QuizResult{}
	}
	if !since.IsZero() {
		export.Since = since.Format(time.DateOnly)
	}

	var percentSum int
	for _, r := range results {
		export.Summary.Quizzes++
		export.Summary.Questions += r.Total
		export.Summary.Correct += r.Score
		percentSum += r.Percent
	}
	if export.Summary.Quizzes > 0 {
		export.Summary.AveragePercent = int(math.Round(float64(percentSum) / float64(export.Summary.Quizzes)))
	}

	return export, nil
}
