// Package views renders the web interface as templ components: full pages
// for plain navigation and panel partials for htmx swaps.
package views

import (
	"context"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/workspace"
)

// Source tabs, in display order.
const (
	KindDocument = "document"
	KindPage     = "page"
	KindVideo    = "video"
)

// Dashboard tabs.
const (
	TabChat    = "chat"
	TabSummary = "summary"
	TabQuiz    = "quiz"
)

// SourceForm is the state of the ingestion form.
type SourceForm struct {
	Kind        string
	URL         string
	Error       string
	MaxUploadMB int
}

// Dashboard is the state of the learning dashboard.
type Dashboard struct {
	View        workspace.View
	Tab         string
	AutoSummary bool
}

// Panel returns the partial for a dashboard tab.
func Panel(tab string, v workspace.View) templ.Component {
	switch tab {
	case TabSummary:
		return SummaryPanel(v)
	case TabQuiz:
		return QuizPanel(v)
	default:
		return ChatPanel(v)
	}
}

func t(ctx context.Context, id string) string {
	return appI18n.T(ctx, id)
}

// td translates id with alternating key/value template data.
func td(ctx context.Context, id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(ctx, id, data)
}

// path prefixes p with the deployment's base path.
func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func csrf(ctx context.Context) string {
	return model.CSRFTokenFromContext(ctx)
}

func clock(at time.Time) string {
	return at.Format("15:04")
}
