// Package report segments a free-text expert report (engineer, hygienist or
// adjuster narrative) into numbered passages. Passages keep their line range
// and the heading they appear under, so extracted directives can be traced
// back to the report text.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Passage is one paragraph or list item of a report.
type Passage struct {
	ID        string
	Section   string
	LineStart int
	LineEnd   int
	Text      string
}

// ParseFile reads and segments the report at path.
func ParseFile(path string) ([]Passage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse segments a report read from r. Passages are split on blank lines,
// headings, rules and list items; headings are not passages themselves but
// label the passages that follow them.
func Parse(r io.Reader) ([]Passage, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	// Reports pasted from PDFs can have very long lines.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("report: scan: %w", err)
	}
	return segment(lines), nil
}

type pending struct {
	start, end int
	buf        []string
}

func segment(lines []string) []Passage {
	var (
		out     []Passage
		cur     *pending
		section string
	)
	flush := func() {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(cur.buf, " "))
		if text != "" {
			out = append(out, Passage{
				ID:        fmt.Sprintf("RPT-%03d", len(out)+1),
				Section:   section,
				LineStart: cur.start,
				LineEnd:   cur.end,
				Text:      text,
			})
		}
		cur = nil
	}

	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || IsRule(trimmed):
			flush()
		case IsHeading(trimmed):
			flush()
			section = HeadingText(trimmed)
		case IsListItem(trimmed) && !(cur != nil && isIndented(line)):
			flush()
			cur = &pending{start: n, end: n, buf: []string{StripListPrefix(trimmed)}}
		default:
			if cur == nil {
				cur = &pending{start: n}
			}
			cur.buf = append(cur.buf, trimmed)
			cur.end = n
		}
	}
	flush()
	return out
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

// IsHeading reports whether a trimmed line is a Markdown ATX heading
// ("## Findings") or a short all-caps title, optionally ending in a colon
// ("RECOMMENDATIONS:").
func IsHeading(trimmed string) bool {
	if hashes := strings.IndexFunc(trimmed, func(r rune) bool { return r != '#' }); hashes > 0 && hashes <= 6 {
		return trimmed[hashes] == ' '
	}
	t := strings.TrimSuffix(trimmed, ":")
	if len(t) < 3 || len(t) > 60 {
		return false
	}
	letters := 0
	for _, r := range t {
		switch {
		case unicode.IsLower(r):
			return false
		case unicode.IsLetter(r):
			letters++
		}
	}
	return letters >= 3 && !strings.HasSuffix(t, ".")
}

// HeadingText strips heading markers.
func HeadingText(trimmed string) string {
	t := strings.TrimLeft(trimmed, "#")
	return strings.TrimSuffix(strings.TrimSpace(t), ":")
}

// IsRule reports whether a trimmed line is a run of at least three '-', '=',
// '*' or '_'.
func IsRule(trimmed string) bool {
	if len(trimmed) < 3 {
		return false
	}
	c := trimmed[0]
	if c != '-' && c != '=' && c != '*' && c != '_' {
		return false
	}
	return strings.Count(trimmed, string(c)) == len(trimmed)
}

// IsListItem reports whether a trimmed line starts a bullet ("- ", "* ",
// "• "), a numbered item ("3. ", "3) ") or a lettered item ("b) ", "b. ").
func IsListItem(trimmed string) bool {
	_, ok := listBody(trimmed)
	return ok
}

// StripListPrefix returns the text after a list marker, or the line unchanged.
func StripListPrefix(trimmed string) string {
	if body, ok := listBody(trimmed); ok {
		return body
	}
	return trimmed
}

func listBody(t string) (string, bool) {
	for _, p := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(t, p) {
			return strings.TrimSpace(t[len(p):]), true
		}
	}
	j := 0
	for j < len(t) && t[j] >= '0' && t[j] <= '9' {
		j++
	}
	if j == 0 && len(t) > 0 && t[0] >= 'a' && t[0] <= 'z' {
		j = 1
	}
	if j > 0 && j+1 < len(t) && (t[j] == '.' || t[j] == ')') && t[j+1] == ' ' {
		return strings.TrimSpace(t[j+2:]), true
	}
	return "", false
}

// Numbered renders passages as "RPT-001 [12-14] (Section): text" lines, the
// form the directive extractor quotes back.
func Numbered(ps []Passage) string {
	var sb strings.Builder
	for _, p := range ps {
		fmt.Fprintf(&sb, "%s [%d-%d]", p.ID, p.LineStart, p.LineEnd)
		if p.Section != "" {
			fmt.Fprintf(&sb, " (%s)", p.Section)
		}
		fmt.Fprintf(&sb, ": %s\n", p.Text)
	}
	return sb.String()
}
