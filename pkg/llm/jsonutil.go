package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencedObject matches an object inside a markdown code fence.
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// bareObject matches the outermost braces.
	bareObject    = regexp.MustCompile(`(?s)\{.*\}`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the JSON object embedded in model output, or "" if
// there is none. Markdown fences, // comments and trailing commas are removed.
// When braces in surrounding prose make the outermost span invalid, the first
// balanced object that parses is returned instead.
func ExtractJSON(content string) string {
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		return clean(m[1])
	}
	raw := bareObject.FindString(content)
	if raw == "" {
		return ""
	}
	out := clean(raw)
	if json.Valid([]byte(out)) {
		return out
	}
	for start := strings.IndexByte(content, '{'); start >= 0; {
		end := matchBrace(content, start)
		if end < 0 {
			break
		}
		if obj := clean(content[start : end+1]); json.Valid([]byte(obj)) {
			return obj
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

func clean(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripComment(line)
	}
	return trailingComma.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside string literals, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripComment drops a trailing // comment that is outside a string literal.
func stripComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
