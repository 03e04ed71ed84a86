// Package latex normalizes math delimiters in model answers so a
// remark-math/KaTeX style renderer only has to understand $...$ and $$...$$.
package latex

import (
	"regexp"
	"strings"
)

var reAlign = regexp.MustCompile(`(?s)\\begin\{align\*?\}.*?\\end\{align\*?\}`)

// Normalize rewrites \[..\] to $$..$$, \(..\) to $..$ and wraps align /
// align* environments in $$ unless they already sit inside a $$ block.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = replaceDelims(s, '[', ']', "$$")
	s = replaceDelims(s, '(', ')', "$")
	return wrapAlign(s)
}

// replaceDelims rewrites \<opener>..\<closer> pairs to delim..delim. A doubled
// backslash is a LaTeX line break, so "\\[2pt]" is never an opener or closer.
// An opener without a closer is left as is.
func replaceDelims(s string, opener, closer byte, delim string) string {
	if !strings.Contains(s, `\`+string(opener)) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		switch s[i+1] {
		case '\\':
			b.WriteString(`\\`)
			i += 2
		case opener:
			end := findClose(s, i+2, closer)
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(delim)
			b.WriteString(s[i+2 : end])
			b.WriteString(delim)
			i = end + 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// findClose returns the index of the backslash of the first unescaped
// \<closer> at or after from, or -1.
func findClose(s string, from int, closer byte) int {
	for j := from; j+1 < len(s); j++ {
		if s[j] != '\\' {
			continue
		}
		if s[j+1] == closer {
			return j
		}
		if s[j+1] == '\\' {
			j++
		}
	}
	return -1
}

func wrapAlign(s string) string {
	locs := reAlign.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4*len(locs))
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		b.WriteString(s[prev:start])
		block := s[start:end]
		// an odd number of $$ before the block means we are inside display math
		if strings.Count(s[:start], "$$")%2 == 1 {
			b.WriteString(block)
		} else {
			b.WriteString("$$")
			b.WriteString(block)
			b.WriteString("$$")
		}
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}
