package chunker

import "strings"

// Markdown splits on top-level and second-level headings first so a chunk
// never straddles two sections, then applies the fixed splitter within each
// section. Heading lines stay attached to their section body.
type Markdown struct {
	Fixed Fixed
}

func (m *Markdown) Split(text string) []string {
	sections := splitSections(text)
	var out []string
	for _, sec := range sections {
		out = append(out, m.Fixed.Split(sec)...)
	}
	return out
}

func splitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
	}
	for _, line := range lines {
		if isHeading(line) {
			flush()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	return strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ")
}
