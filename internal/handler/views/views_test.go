package views

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
	"github.com/pavelanni/sahayak/internal/workspace"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	ctx = model.ContextWithBasePath(ctx, "/learn")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")

	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func assertContains(t *testing.T, html string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(html, w) {
			t.Errorf("output missing %q", w)
		}
	}
}

func snapshotFor(t *testing.T, answers ...string) quiz.Snapshot {
	t.Helper()
	var s quiz.Session
	s.Load([]quiz.Question{
		{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"},
		{Prompt: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectOption: "Paris"},
	})
	for _, a := range answers {
		if err := s.SubmitAnswer(a); err != nil {
			t.Fatalf("SubmitAnswer: %v", err)
		}
	}
	return s.Snapshot()
}

func TestSourcePage(t *testing.T) {
	html := renderString(t, SourcePage(SourceForm{Kind: KindDocument, MaxUploadMB: 10}))
	assertContains(t, html,
		"<title>Shiksha Sahayak</title>",
		`action="/learn/ingest/document"`,
		`enctype="multipart/form-data"`,
		`name="csrf_token" value="tok123"`,
		"Supports files up to 10 MB",
		"Start Learning Session",
	)
	if strings.Contains(html, `role="alert"`) {
		t.Error("no error banner expected")
	}
}

func TestSourceSectionWithError(t *testing.T) {
	html := renderString(t, SourceSection(SourceForm{Kind: KindVideo, URL: "https://youtu.be/x", Error: "could not <fetch>"}))
	assertContains(t, html,
		`action="/learn/ingest/video"`,
		`value="https://youtu.be/x"`,
		"YouTube Video URL",
		`role="alert">could not &lt;fetch&gt;</div>`,
	)
	if strings.Contains(html, "<html") {
		t.Error("section must not include the layout")
	}
}

func TestDashboardChat(t *testing.T) {
	v := workspace.View{
		SessionID: "0123456789abcdef",
		Source:    model.Source{Label: "notes.pdf"},
		Messages: []model.ChatMessage{
			{ID: 1, Role: model.RoleUser, Content: "what is osmosis?"},
			{ID: 2, Role: model.RoleAssistant, Content: "Error: session expired"},
		},
	}
	html := renderString(t, DashboardPage(Dashboard{View: v, Tab: TabChat, AutoSummary: true}))
	assertContains(t, html,
		"Session ID: 01234567...",
		"notes.pdf",
		`class="message user"`,
		"what is osmosis?",
		"Error: session expired",
		`hx-post="/learn/summary" hx-trigger="load"`,
		`class="tab active" href="/learn/?tab=chat"`,
	)
}

func TestChatPanelEmptyAndPending(t *testing.T) {
	html := renderString(t, ChatPanel(workspace.View{SessionID: "s", Chatting: true}))
	assertContains(t, html, "Start Your Learning Journey", `class="message assistant pending"`)
}

func TestSummaryPanel(t *testing.T) {
	tests := []struct {
		name string
		view workspace.View
		want []string
	}{
		{"empty", workspace.View{SessionID: "s"}, []string{"Click &#34;Regenerate&#34; to create a summary"}},
		{"loading", workspace.View{SessionID: "s", Summarizing: true}, []string{`hx-get="/learn/panel/summary"`, "Generating summary..."}},
		{
			"with diagram",
			workspace.View{SessionID: "s", Summary: "Intro\n```mermaid\ngraph TD; A-->B\n```\nOutro"},
			[]string{`<div class="text">Intro</div>`, `<pre class="diagram">graph TD; A--&gt;B</pre>`, `<div class="text">Outro</div>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := renderString(t, SummaryPanel(tt.view))
			assertContains(t, html, tt.want...)
		})
	}
}

func TestQuizPanel(t *testing.T) {
	tests := []struct {
		name string
		view workspace.View
		want []string
		skip []string
	}{
		{
			"empty",
			workspace.View{SessionID: "s"},
			[]string{"Click &#34;Generate Quiz&#34; to create questions"},
			[]string{`action="/learn/quiz/reset"`},
		},
		{
			"generating",
			workspace.View{SessionID: "s", Generating: true},
			[]string{`hx-get="/learn/panel/quiz"`, "disabled"},
			nil,
		},
		{
			"in progress",
			workspace.View{SessionID: "s", Quiz: snapshotFor(t, "4")},
			[]string{
				"Question 2 of 2",
				`max="100" value="100"`,
				"Capital of France?",
				`<span class="label">A</span> Paris`,
				`<span class="label">B</span> Rome`,
				`name="index" value="1"`,
				`name="option" value="1"`,
				`action="/learn/quiz/reset"`,
			},
			[]string{"Quiz Complete!"},
		},
		{
			"completed",
			workspace.View{SessionID: "s", Quiz: snapshotFor(t, "4", "Rome")},
			[]string{"50%", "Quiz Complete!", "You scored 1 out of 2 questions correctly.", "Take Quiz Again"},
			[]string{"Capital of France?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := renderString(t, QuizPanel(tt.view))
			assertContains(t, html, tt.want...)
			for _, s := range tt.skip {
				if strings.Contains(html, s) {
					t.Errorf("output should not contain %q", s)
				}
			}
		})
	}
}

func TestPanelDispatch(t *testing.T) {
	v := workspace.View{SessionID: "s"}
	assertContains(t, renderString(t, Panel(TabQuiz, v)), `id="quiz"`)
	assertContains(t, renderString(t, Panel(TabSummary, v)), `id="summary"`)
	assertContains(t, renderString(t, Panel("bogus", v)), `id="chat"`)
}

func TestSplitDiagrams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Block
	}{
		{"empty", "", nil},
		{"plain", "Just text.\nMore.", []Block{{Content: "Just text.\nMore."}}},
		{
			"diagram between text",
			"Intro\n\n```mermaid\ngraph TD\n  A-->B\n```\n\nOutro",
			[]Block{
				{Content: "Intro"},
				{Diagram: true, Content: "graph TD\n  A-->B"},
				{Content: "Outro"},
			},
		},
		{
			"only diagram with CRLF",
			"```mermaid\r\nflowchart LR\r\n```",
			[]Block{{Diagram: true, Content: "flowchart LR"}},
		},
		{
			"unterminated fence",
			"Intro\n```mermaid\ngraph TD",
			[]Block{{Content: "Intro"}, {Content: "```mermaid\ngraph TD"}},
		},
		{
			"other code fences stay text",
			"```go\nfmt.Println()\n```",
			[]Block{{Content: "```go\nfmt.Println()\n```"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitDiagrams(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitDiagrams() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
