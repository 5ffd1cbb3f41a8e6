package devbackend

import (
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		wantTitle string
		wantText  string
	}{
		{
			"blocks become lines",
			`<html><head><title> Cells </title></head><body><h1>Cells</h1><p>They <b>divide</b>.</p><ul><li>One</li><li>Two</li></ul></body></html>`,
			"Cells",
			"Cells\nThey divide .\nOne\nTwo",
		},
		{
			"scripts and navigation skipped",
			`<body><nav><a>Menu</a></nav><script>var a = "<p>";</script><p>Kept</p><footer>(c)</footer></body>`,
			"",
			"Kept",
		},
		{
			"entities decoded",
			`<p>5 &lt; 6 &amp; 7</p>`,
			"",
			"5 < 6 & 7",
		},
		{"empty", ``, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, text, err := ExtractText(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestIsText(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     bool
	}{
		{"markdown", "a.md", "# hi", true},
		{"pdf", "a.pdf", "%PDF-1.4", false},
		{"unknown ext text", "README", "plain words", true},
		{"invalid utf8", "a.txt", "\xff\xfe", false},
		{"binary", "a.bin", "\x00\x00\x00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isText(tt.filename, []byte(tt.data)); got != tt.want {
				t.Errorf("isText() = %v, want %v", got, tt.want)
			}
		})
	}
}
