package repair

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestObject_Fixtures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{
			name: "fenced with trailing comma",
			in:   "```json\n{\"title\": \"x\",}\n```",
			want: map[string]any{"title": "x"},
		},
		{
			name: "prose around object",
			in:   "Sure! Here is the report:\n{\"title\": \"x\", \"n\": 2}\nLet me know.",
			want: map[string]any{"title": "x", "n": float64(2)},
		},
		{
			name: "truncated closers",
			in:   `{"title": "x", "items": [{"a": 1}, {"b": 2`,
			want: map[string]any{"title": "x", "items": []any{map[string]any{"a": float64(1)}, map[string]any{"b": float64(2)}}},
		},
		{
			name: "truncated after preamble",
			in:   `Report: {"title": "x", "items": [1, 2`,
			want: map[string]any{"title": "x", "items": []any{float64(1), float64(2)}},
		},
		{
			name: "single line label preamble",
			in:   `Here is the report: {"title": "x"}`,
			want: map[string]any{"title": "x"},
		},
		{
			name: "short preamble and truncated",
			in:   `Sure: {"a": 1`,
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "fenced block then prose",
			in:   "```json\n{\"title\": \"x\"}\n```\nHope this helps!",
			want: map[string]any{"title": "x"},
		},
		{
			name: "prose then fence then prose",
			in:   "Report below.\n```json\n{\"title\": \"x\", \"n\": 1,}\n```\nAnything else?",
			want: map[string]any{"title": "x", "n": float64(1)},
		},
		{
			name: "non-finite words inside single-quoted text",
			in:   `{'c': 'it is NaN here', 'd': NaN, 'e': 'Infinity and None'}`,
			want: map[string]any{"c": "it is NaN here", "d": nil, "e": "Infinity and None"},
		},
		{
			name: "nested trailing commas",
			in:   `{"a": [1, 2, ], "b": {"c": 3, }, }`,
			want: map[string]any{"a": []any{float64(1), float64(2)}, "b": map[string]any{"c": float64(3)}},
		},
		{
			name: "non-finite numbers",
			in:   `{"a": NaN, "b": -Infinity, "c": Infinity, "d": "NaN"}`,
			want: map[string]any{"a": nil, "b": nil, "c": nil, "d": "NaN"},
		},
		{
			name: "double encoded",
			in:   `"{\"title\": \"x\"}"`,
			want: map[string]any{"title": "x"},
		},
		{
			name: "python literal syntax",
			in:   `{'title': 'x', 'ok': True, 'none': None}`,
			want: map[string]any{"title": "x", "ok": true, "none": nil},
		},
		{
			name: "list of objects",
			in:   `[{"title": "x"}, {"title": "y"}]`,
			want: map[string]any{"title": "x"},
		},
		{
			name: "braces inside strings",
			in:   `{"title": "use {curly} and [square]", "n": 1}`,
			want: map[string]any{"title": "use {curly} and [square]", "n": float64(1)},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Object(tt.in)
			if !ok {
				t.Fatalf("expected repair to succeed for %q", tt.in)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestObject_GivesUp(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		``,
		`   `,
		`no json at all`,
		`{"title": "unterminated`,
		`{}`,
		`[1, 2, 3]`,
	} {
		if got, ok := Object(in); ok {
			t.Fatalf("expected give-up for %q, got %#v", in, got)
		}
	}
}

func TestObject_ProseNeverPanics(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		`Here is the report: {"title": "x"`,
		`Answer: {'a': 'b`,
		`Note {"a": [1, {"b": "c`,
		"ok:\n```\n{\"a\": \"b\"\n```\nbye",
		`Result: "{\"a\": 1"`,
		`{"a": 1} trailing words {"b"`,
	} {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Object(%q) panicked: %v", in, r)
				}
			}()
			Object(in)
		}()
	}
}

func TestObject_RoundTrip(t *testing.T) {
	want := map[string]any{
		"title":   "Report",
		"summary": "all good",
		"radar_scores": []any{
			map[string]any{"axis": "performance", "score": float64(70)},
		},
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, ok := Object(string(b))
	if !ok {
		t.Fatalf("expected valid JSON to parse")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}
