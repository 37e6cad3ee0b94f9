// Package repair recovers a single JSON object from untrusted language-model text.
package repair

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/mohammad-safakhou/apilog/internal/helpers"
)

// Object extracts one JSON object from text. It returns ok=false when no
// candidate yields a non-empty object; that is a normal outcome, not an error.
//
// Candidates are processed breadth-first starting from the fence-stripped text
// and its first balanced {...} slice. Each candidate is sanitised (non-finite
// numbers become null), parsed strictly, then permissively; failing both it may
// spawn an unwrapped, a comma-cleaned and a bracket-balanced variant. A seen-set
// bounds the search.
func Object(text string) (map[string]any, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	stripped := helpers.StripCodeFence(text)
	queue := []string{stripped}
	if first, ok := helpers.FirstBalancedObject(stripped); ok {
		queue = append(queue, first)
	} else if i := strings.IndexByte(stripped, '{'); i > 0 {
		// truncated object behind a prose preamble
		queue = append(queue, stripped[i:])
	}

	seen := make(map[string]struct{})
	for len(queue) > 0 {
		candidate := strings.TrimSpace(queue[0])
		queue = queue[1:]
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		if obj, ok := strictObject(candidate); ok {
			return obj, true
		}
		if obj, ok := literalObject(candidate); ok {
			return obj, true
		}

		enqueue := func(s string) {
			if s == "" || s == candidate {
				return
			}
			if _, ok := seen[s]; ok {
				return
			}
			queue = append(queue, s)
		}
		if inner, ok := unwrapString(candidate); ok {
			enqueue(inner)
		}
		enqueue(helpers.RemoveTrailingCommas(candidate))
		if balanced, ok := helpers.BalanceBrackets(candidate); ok {
			enqueue(balanced)
		}
	}
	return nil, false
}

// sanitizeNonFinite nulls NaN and Infinity outside double-quoted strings.
// Single-quoted input must go through DoubleQuoteStrings first.
func sanitizeNonFinite(s string) string {
	return helpers.ReplaceBareWords(s, `"`, func(w string) (string, bool) {
		switch w {
		case "NaN", "-NaN", "Infinity", "-Infinity":
			return "null", true
		}
		return "", false
	})
}

func strictObject(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(sanitizeNonFinite(s)), &v); err != nil {
		return nil, false
	}
	return pickObject(v)
}

// literalObject is the second chance for host-language literal syntax:
// single quotes, unquoted keys and Python-style True/False/None.
// Only candidates that open a value are tried; prose preambles are left to
// the balanced-slice candidates.
func literalObject(s string) (map[string]any, bool) {
	if s == "" || !strings.ContainsRune("{['\"", rune(s[0])) {
		return nil, false
	}
	rewritten := helpers.DoubleQuoteStrings(s)
	rewritten = helpers.ReplaceBareWords(rewritten, `"`, func(w string) (string, bool) {
		switch w {
		case "True":
			return "true", true
		case "False":
			return "false", true
		case "None", "NaN", "-NaN", "Infinity", "-Infinity":
			return "null", true
		}
		return "", false
	})
	var v any
	if err := unmarshalJSON5([]byte(rewritten), &v); err != nil {
		return nil, false
	}
	obj, ok := pickObject(coerce(v))
	return obj, ok
}

// unmarshalJSON5 turns a json5 scanner panic (seen on some malformed
// input) into an error.
func unmarshalJSON5(data []byte, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("json5: %v", r)
		}
	}()
	return json5.Unmarshal(data, v)
}

func pickObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, len(t) > 0
	case []any:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]any); ok {
				return m, len(m) > 0
			}
		}
	}
	return nil, false
}

// unwrapString handles a JSON (or single-quoted) string literal whose content is
// itself JSON-like.
func unwrapString(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	first, last := s[0], s[len(s)-1]
	if !((first == '"' && last == '"') || (first == '\'' && last == '\'')) {
		return "", false
	}
	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err != nil {
		if err := unmarshalJSON5([]byte(s), &inner); err != nil {
			return "", false
		}
	}
	if strings.ContainsAny(inner, "{[") {
		return inner, true
	}
	return "", false
}

// coerce maps anything the permissive parser produced onto plain JSON values.
func coerce(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = coerce(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = coerce(val)
		}
		return out
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case string, bool, nil:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var out any
		if json.Unmarshal(b, &out) != nil {
			return nil
		}
		return out
	}
}
