package model

import "time"

// ResultsExport is the top-level JSON structure for quiz result export.
type ResultsExport struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Since       string        `json:"since,omitempty"`
	Sources     int           `json:"sources"`
	Results     []QuizResult  `json:"results"`
	Summary     ExportSummary `json:"summary"`
}

// ExportSummary aggregates the exported results.
type ExportSummary struct {
	Quizzes        int `json:"quizzes"`
	Questions      int `json:"questions"`
	Correct        int `json:"correct"`
	AveragePercent int `json:"average_percent"`
}
