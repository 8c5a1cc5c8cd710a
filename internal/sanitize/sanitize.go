// Package sanitize cleans text that originates in scenario files (names,
// error messages quoting them) before it is rendered into MCP tool output
// and resources, where an agent reads it as context.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxTextLength bounds free text such as replay error messages.
	MaxTextLength = 2000
	// MaxCellLength bounds one markdown table cell.
	MaxCellLength = 80
	// MaxNameLength bounds a file-safe name.
	MaxNameLength = 80
)

var (
	reXMLTag          = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reFence           = regexp.MustCompile("```+")
	reBlankLines      = regexp.MustCompile(`\n{3,}`)
	reSpaces          = regexp.MustCompile(`\s+`)
	reRepeatedSep     = regexp.MustCompile(`([-_.])[-_.]+`)
)

// Text strips control characters, XML/HTML tags, markdown headings and
// code fences from free text and truncates it to MaxTextLength.
func Text(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reFence.ReplaceAllString(s, "`")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return truncate(s, MaxTextLength)
}

// Cell renders input as a single markdown table cell: one line, no pipes
// or tags, at most MaxCellLength bytes.
func Cell(input string) string {
	s := stripControlChars(input, false)
	s = reXMLTag.ReplaceAllString(s, "")
	s = strings.NewReplacer("|", "/", "`", "'").Replace(s)
	s = reSpaces.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), MaxCellLength)
}

// Name keeps only [a-zA-Z0-9._-], collapses runs of separators and trims
// leading dots, so the result is safe as a file name.
func Name(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := reRepeatedSep.ReplaceAllString(b.String(), "$1")
	s = strings.TrimLeft(s, ".")
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// stripControlChars drops ASCII control characters. Newlines and tabs are
// kept when keepLines is set and become spaces otherwise.
func stripControlChars(s string, keepLines bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			if keepLines && r != '\r' {
				b.WriteRune(r)
			} else if !keepLines {
				b.WriteByte(' ')
			}
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary.
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
