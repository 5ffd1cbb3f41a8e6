package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Shiksha Sahayak" {
		t.Errorf("T(AppTitle) = %q, want 'Shiksha Sahayak'", got)
	}

	got = T(ctx, "GenerateQuiz")
	if got != "Generate Quiz" {
		t.Errorf("T(GenerateQuiz) = %q, want 'Generate Quiz'", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	got := T(ctx, "AppTitle")
	if got != "शिक्षा सहायक" {
		t.Errorf("T(AppTitle) = %q, want 'शिक्षा सहायक'", got)
	}

	got = T(ctx, "TabQuiz")
	if got != "प्रश्नोत्तरी" {
		t.Errorf("T(TabQuiz) = %q, want 'प्रश्नोत्तरी'", got)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	if err := Init("fr"); err == nil {
		t.Fatal("expected error for a language without a locale file")
	}
	if err := Init("not a tag!"); err == nil {
		t.Fatal("expected error for an invalid tag")
	}
}

func TestSupported(t *testing.T) {
	initLang(t, "en")
	langs := Supported()
	for _, want := range []string{"en", "hi"} {
		if !slices.Contains(langs, want) {
			t.Errorf("Supported() = %v, missing %q", langs, want)
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuizReady", 1)
	if got1 != "Quiz ready: 1 question." {
		t.Errorf("Tp(QuizReady, 1) = %q, want 'Quiz ready: 1 question.'", got1)
	}

	got5 := Tp(ctx, "QuizReady", 5)
	if got5 != "Quiz ready: 5 questions." {
		t.Errorf("Tp(QuizReady, 5) = %q, want 'Quiz ready: 5 questions.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuizScore", map[string]any{"Score": 3, "Total": 5})
	if got != "You scored 3 out of 5 questions correctly." {
		t.Errorf("Td(QuizScore) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallbackWithoutLocalizer(t *testing.T) {
	initLang(t, "hi")
	if got := T(context.Background(), "TabChat"); got != "चैट" {
		t.Errorf("T without localizer = %q, want default language", got)
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		accept string
		want   string
	}{
		{"", "Chat"},
		{"hi-IN,hi;q=0.9,en;q=0.8", "चैट"},
		{"fr-FR,fr;q=0.9", "Chat"},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			var got string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "TabChat")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("T(TabChat) = %q, want %q", got, tt.want)
			}
		})
	}
}
