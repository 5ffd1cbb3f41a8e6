package devbackend

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements never contribute readable text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Iframe:   true,
}

// blocks end a line of text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

// ExtractText returns the page title and its readable text, one block per line.
func ExtractText(r io.Reader) (title, text string, err error) {
	z := html.NewTokenizer(r)
	var (
		sb      strings.Builder
		line    strings.Builder
		depth   int
		inTitle bool
	)

	flush := func() {
		s := strings.Join(strings.FieldsFunc(line.String(), unicode.IsSpace), " ")
		line.Reset()
		if s == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(s)
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", "", err
			}
			flush()
			return strings.TrimSpace(title), sb.String(), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && tt == html.StartTagToken {
				depth++
			}
			if a == atom.Title {
				inTitle = tt == html.StartTagToken
			}
			if blocks[a] {
				flush()
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && depth > 0 {
				depth--
			}
			if a == atom.Title {
				inTitle = false
			}
			if blocks[a] {
				flush()
			}

		case html.TextToken:
			if inTitle {
				title += string(z.Text())
				continue
			}
			if depth > 0 {
				continue
			}
			line.Write(z.Text())
			line.WriteByte(' ')
		}
	}
}
