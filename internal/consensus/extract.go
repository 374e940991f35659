package consensus

import (
	"regexp"
	"strings"
)

var codeFencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON pulls the first balanced JSON object or array out of text that
// may be wrapped in code fences or surrounded by prose. Whichever opener
// comes first is tried first, so a top-level array of objects is not
// mistaken for its first element.
func ExtractJSON(text string) (string, bool) {
	text = stripCodeFence(text)
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	if arr >= 0 && (obj < 0 || arr < obj) {
		return firstBalanced(text, arr, obj)
	}
	return firstBalanced(text, obj, arr)
}

// ExtractJSONObject is like ExtractJSON but always tries the first '{'
// before any '['. Prose such as "Notes for [Team Offsite]" ahead of the
// object is skipped.
func ExtractJSONObject(text string) (string, bool) {
	text = stripCodeFence(text)
	return firstBalanced(text, strings.IndexByte(text, '{'), strings.IndexByte(text, '['))
}

func stripCodeFence(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

func firstBalanced(text string, starts ...int) (string, bool) {
	for _, start := range starts {
		if start < 0 {
			continue
		}
		if s, ok := balancedFrom(text, start); ok {
			return s, true
		}
	}
	return "", false
}

// balancedFrom scans from text[start] (an opening bracket) until the
// matching close, skipping brackets inside string literals.
func balancedFrom(text string, start int) (string, bool) {
	open := text[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
