// Package text normalizes assistant replies before they are sent to chat.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// citationRegex matches file citation markers such as "【4:0†source】".
	citationRegex = regexp.MustCompile(`【[^】]*†[^】]*】`)

	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	unicodeReplacer = strings.NewReplacer(
		// invisible format characters
		"\u2060", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u200E", "",
		"\u200F", "",
		"\u2061", "",
		"\u2062", "",
		"\u2063", "",
		"\u2064", "",

		// separators and unusual spaces
		"\u2028", "\n",
		"\u2029", "\n\n",
		"\u200B", " ",
		"\u205F", " ",
		"\u2009", " ",
		"\u200A", " ",
		"\u202F", " ",
		"\u3000", " ",
		"\u00A0", " ",
	)
)

// CleanReply strips citation markers, invisible characters and control
// characters from an assistant reply. Spaces are collapsed per line but
// indentation is kept so code blocks survive; runs of blank lines become
// one. The result is empty when nothing printable remains.
func CleanReply(reply string) string {
	s := strings.ReplaceAll(reply, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = citationRegex.ReplaceAllString(s, "")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	s = strings.Join(lines, "\n")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// collapseSpaces collapses inner whitespace runs to one space, keeping the
// leading indentation and dropping trailing whitespace.
func collapseSpaces(line string) string {
	body := strings.TrimLeftFunc(line, unicode.IsSpace)
	indent := line[:len(line)-len(body)]
	body = strings.TrimRightFunc(body, unicode.IsSpace)
	if body == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(indent)
	space := false
	for _, r := range body {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
			}
			space = true
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return b.String()
}
