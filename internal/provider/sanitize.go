package provider

import (
	"regexp"
	"strings"
)

var openFenceRe = regexp.MustCompile("^```[a-zA-Z0-9+-]*[ \t]*(\n|$)")

// Sanitize strips leading/trailing markdown code fences (with optional
// language hints) and surrounding whitespace from model output. It iterates
// to a fixed point, so running it twice yields the same result as once.
func Sanitize(text string) string {
	for {
		stripped := stripFences(text)
		if stripped == text {
			return text
		}
		text = stripped
	}
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if loc := openFenceRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if strings.HasSuffix(text, "```") {
		trimmed := strings.TrimSuffix(text, "```")
		// Only treat it as a closing fence when it sits on its own line
		// or closes the whole blob.
		if trimmed == "" || strings.HasSuffix(trimmed, "\n") {
			text = trimmed
		}
	}

	return strings.TrimSpace(text)
}

// ExtractJSON returns the first balanced {...} or [...] span in text.
// String literals and escapes are respected so braces inside strings do not
// unbalance the scan. Returns "" when no complete span exists.
func ExtractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}

	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
