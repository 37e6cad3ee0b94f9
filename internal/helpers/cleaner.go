package helpers

import (
	"strings"
	"unicode"
)

// StripCodeFence removes a leading ``` or ~~~ fence (with an optional language tag)
// and the matching closing fence. A missing closing fence is tolerated so that
// truncated model output still yields its body. A bare leading "json" tag left
// behind by models that omit the newline is dropped as well.
func StripCodeFence(s string) string {
	s = trimBOM(strings.TrimSpace(s))
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) {
			continue
		}
		rest := s[len(fence):]
		if idx := strings.IndexByte(rest, '\n'); idx != -1 {
			rest = rest[idx+1:]
		} else {
			rest = strings.TrimLeftFunc(rest, unicode.IsLetter)
		}
		if end := strings.LastIndex(rest, fence); end != -1 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
		break
	}
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s
}

// FirstBalancedObject returns the first balanced {...} slice of s, starting at the
// first '{'. Braces inside double-quoted strings are ignored and backslash escapes
// are honoured. ok is false when the object never closes.
func FirstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	return extractBalancedJSONFrom(s, start)
}

// BalanceBrackets appends the minimal closing sequence for every unclosed '{' or
// '[' in s. It refuses (ok=false) when nothing is open, when the scan ends inside a
// string, or when a closer does not match its opener.
func BalanceBrackets(s string) (string, bool) {
	var (
		stack    []byte
		inString bool
		escape   bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || !closes(stack[len(stack)-1], c) {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString || len(stack) == 0 {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(s) + len(stack))
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// RemoveTrailingCommas drops commas that are followed only by whitespace and a
// closing '}' or ']'. Commas inside strings are left alone.
func RemoveTrailingCommas(s string) string {
	var (
		b        strings.Builder
		inString bool
		escape   bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escape {
				escape = false
			} else if c == '\\' {
				escape = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ReplaceBareWords rewrites identifier-like words that appear outside quoted
// strings. quotes lists the characters that open a string (for example `"` or
// `"'`). A '-' directly in front of a word is passed to fn as part of the word.
// fn returns the replacement and whether to replace at all.
func ReplaceBareWords(s, quotes string, fn func(word string) (string, bool)) string {
	var (
		b      strings.Builder
		quote  byte
		escape bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if escape {
				escape = false
			} else if c == '\\' {
				escape = true
			} else if c == quote {
				quote = 0
			}
			i++
			continue
		}
		if strings.IndexByte(quotes, c) != -1 {
			quote = c
			b.WriteByte(c)
			i++
			continue
		}
		start := i
		if c == '-' && i+1 < len(s) && isWordStart(s[i+1]) {
			i++
		}
		if isWordStart(s[i]) && (start == 0 || !isWordByte(s[start-1])) {
			j := i + 1
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			word := s[start:j]
			if repl, ok := fn(word); ok {
				b.WriteString(repl)
			} else {
				b.WriteString(word)
			}
			i = j
			continue
		}
		b.WriteByte(s[start])
		i = start + 1
	}
	return b.String()
}

// DoubleQuoteStrings rewrites single-quoted string literals as double-quoted
// ones, escaping embedded double quotes. Double-quoted strings are copied as is.
func DoubleQuoteStrings(s string) string {
	var (
		b      strings.Builder
		quote  byte
		escape bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == 0:
			if c == '"' || c == '\'' {
				quote = c
				b.WriteByte('"')
				continue
			}
			b.WriteByte(c)
		case escape:
			escape = false
			if quote == '\'' && c == '\'' {
				b.WriteByte('\'')
				continue
			}
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\\':
			escape = true
		case c == quote:
			quote = 0
			b.WriteByte('"')
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	if escape {
		b.WriteByte('\\')
	}
	return b.String()
}

// extractBalancedJSONFrom attempts to extract a balanced JSON value starting at startIdx.
// It supports objects and arrays and correctly handles strings and escape sequences.
func extractBalancedJSONFrom(s string, startIdx int) (string, bool) {
	if startIdx < 0 || startIdx >= len(s) {
		return "", false
	}
	start := s[startIdx]
	if start != '{' && start != '[' {
		return "", false
	}

	var (
		stack    = []byte{start}
		inString bool
		escape   bool
	)
	for i := startIdx + 1; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if !closes(stack[len(stack)-1], c) {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[startIdx : i+1], true
			}
		}
	}
	return "", false
}

func closes(open, c byte) bool {
	return (open == '{' && c == '}') || (open == '[' && c == ']')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
