package source

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Annotations are the wrapper annotation names dropped by Normalize.
// An annotation line looks like "@vs.store" or "@step(name)"; only the
// last dotted component is compared.
var Annotations = []string{"store", "store_var", "store_gen", "step", "launch", "call"}

// Normalize turns extracted callable text into the canonical form
// that is written to disk: NFC, LF line endings, known annotation
// lines removed, the common indent of the first non-blank line
// stripped from every line, and one trailing newline.
func Normalize(src string) string {
	src = norm.NFC.String(src)
	src = strings.ReplaceAll(src, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(src, "\n") {
		if isAnnotation(line) {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	lines = dedent(lines)
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Indent measures the leading whitespace of line: a space counts
// one column, a tab four.  Counting stops at the first other rune.
func Indent(line string) (n int) {
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return
		}
	}
	return
}

func isAnnotation(line string) bool {
	s := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(s, "@") {
		return false
	}
	s = s[1:]
	if i := strings.IndexAny(s, "( \t"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	for _, name := range Annotations {
		if s == name {
			return true
		}
	}
	return false
}

func dedent(lines []string) []string {
	n := -1
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			n = Indent(line)
			break
		}
	}
	if n <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strip(line, n)
	}
	return out
}

// strip removes up to n columns of leading whitespace.
func strip(line string, n int) string {
	col := 0
	for i, r := range line {
		if col >= n {
			return line[i:]
		}
		switch r {
		case ' ':
			col++
		case '\t':
			col += 4
		default:
			return line[i:]
		}
	}
	return ""
}
