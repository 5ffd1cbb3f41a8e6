package views

import "strings"

// Block is a piece of summary text. Diagram blocks hold mermaid source for
// the client-side renderer.
type Block struct {
	Diagram bool
	Content string
}

// SplitDiagrams cuts text at ```mermaid fences. An unterminated fence is
// kept as plain text.
func SplitDiagrams(text string) []Block {
	var (
		blocks    []Block
		buf       []string
		inDiagram bool
		fence     string
	)
	flush := func(diagram bool) {
		content := strings.Trim(strings.Join(buf, "\n"), "\n")
		if strings.TrimSpace(content) != "" {
			blocks = append(blocks, Block{Diagram: diagram, Content: content})
		}
		buf = buf[:0]
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !inDiagram && strings.HasPrefix(trimmed, "```mermaid"):
			flush(false)
			inDiagram = true
			fence = line
		case inDiagram && trimmed == "```":
			flush(true)
			inDiagram = false
		default:
			buf = append(buf, line)
		}
	}
	if inDiagram {
		buf = append([]string{fence}, buf...)
	}
	flush(false)
	return blocks
}
