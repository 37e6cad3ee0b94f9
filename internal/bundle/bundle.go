// Package bundle holds the keyed collection of widget results a report is built from.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Row is one tabular record of a widget result.
type Row = map[string]any

// Failure is the inline marker stored for a widget fetch that did not succeed.
type Failure struct {
	Error string `json:"error"`
	URL   string `json:"url"`
}

// Entry is the result of one widget: a payload, a failure or a skip reason.
type Entry struct {
	Key     string
	Payload any
	Fail    *Failure
	Skip    string
}

// OK reports whether the entry carries data.
func (e Entry) OK() bool { return e.Fail == nil && e.Skip == "" }

// Rows normalises the payload into rows. Failed or skipped entries have none.
func (e Entry) Rows() []Row {
	if !e.OK() {
		return nil
	}
	return Normalize(e.Payload)
}

// Meta records where the bundle came from.
type Meta struct {
	Base       string   `json:"base"`
	Discovered []string `json:"discovered"`
	Used       []string `json:"used,omitempty"`
}

// WidgetBundle is an ordered, read-only mapping from widget key to Entry.
type WidgetBundle struct {
	meta    Meta
	entries []Entry
	misc    []Entry
	index   map[string]int
}

// Meta returns a copy of the bundle metadata.
func (b *WidgetBundle) Meta() Meta {
	m := b.meta
	m.Discovered = append([]string(nil), b.meta.Discovered...)
	m.Used = append([]string(nil), b.meta.Used...)
	return m
}

// Keys lists widget keys in insertion order (misc excluded).
func (b *WidgetBundle) Keys() []string {
	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.Key)
	}
	return out
}

// Get returns the entry for key.
func (b *WidgetBundle) Get(key string) (Entry, bool) {
	if b == nil {
		return Entry{}, false
	}
	i, ok := b.index[key]
	if !ok {
		return Entry{}, false
	}
	return b.entries[i], true
}

// Rows returns the normalised rows for key, or nil when absent or failed.
func (b *WidgetBundle) Rows(key string) []Row {
	e, ok := b.Get(key)
	if !ok {
		return nil
	}
	return e.Rows()
}

// Misc returns the catch-all entries in insertion order.
func (b *WidgetBundle) Misc() []Entry {
	return append([]Entry(nil), b.misc...)
}

// Available lists keys that carry data.
func (b *WidgetBundle) Available() []string {
	var out []string
	for _, e := range b.entries {
		if e.OK() {
			out = append(out, e.Key)
		}
	}
	return out
}

// Missing lists keys whose fetch failed or was skipped.
func (b *WidgetBundle) Missing() []string {
	var out []string
	for _, e := range b.entries {
		if !e.OK() {
			out = append(out, e.Key)
		}
	}
	return out
}

// Len is the number of non-misc entries.
func (b *WidgetBundle) Len() int { return len(b.entries) }

// Builder assembles a WidgetBundle. It is not safe for concurrent use.
type Builder struct {
	b *WidgetBundle
}

func NewBuilder(meta Meta) *Builder {
	return &Builder{b: &WidgetBundle{meta: meta, index: map[string]int{}}}
}

// Put stores e, replacing any entry with the same key in place.
func (bl *Builder) Put(e Entry) *Builder {
	if i, ok := bl.b.index[e.Key]; ok {
		bl.b.entries[i] = e
		return bl
	}
	bl.b.index[e.Key] = len(bl.b.entries)
	bl.b.entries = append(bl.b.entries, e)
	return bl
}

// Add stores a successful payload under key.
func (bl *Builder) Add(key string, payload any) *Builder {
	return bl.Put(Entry{Key: key, Payload: payload})
}

// Fail stores an inline failure marker under key.
func (bl *Builder) Fail(key string, err error, url string) *Builder {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return bl.Put(Entry{Key: key, Fail: &Failure{Error: msg, URL: url}})
}

// Skip records that key was intentionally not fetched.
func (bl *Builder) Skip(key, reason string) *Builder {
	return bl.Put(Entry{Key: key, Skip: reason})
}

// Misc stores an entry in the catch-all section.
func (bl *Builder) Misc(e Entry) *Builder {
	bl.b.misc = append(bl.b.misc, e)
	return bl
}

// Used appends to the list of endpoints actually fetched.
func (bl *Builder) Used(paths ...string) *Builder {
	bl.b.meta.Used = append(bl.b.meta.Used, paths...)
	return bl
}

// Build returns the bundle. The builder must not be used afterwards.
func (bl *Builder) Build() *WidgetBundle {
	b := bl.b
	bl.b = nil
	return b
}

// MarshalJSON writes `_meta` first, then each entry in order, then `misc`.
func (b *WidgetBundle) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "_meta", b.meta); err != nil {
		return nil, err
	}
	for _, e := range b.entries {
		buf.WriteByte(',')
		if err := writeField(&buf, e.Key, entryValue(e)); err != nil {
			return nil, err
		}
	}
	if len(b.misc) > 0 {
		buf.WriteString(`,"misc":{`)
		for i, e := range b.misc {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeField(&buf, e.Key, entryValue(e)); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func entryValue(e Entry) any {
	switch {
	case e.Fail != nil:
		return map[string]any{"_fail": e.Fail}
	case e.Skip != "":
		return map[string]any{"_skip": e.Skip}
	default:
		return e.Payload
	}
}

func writeField(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

// UnmarshalJSON reads the form produced by MarshalJSON, keeping key order.
func (b *WidgetBundle) UnmarshalJSON(data []byte) error {
	keys, raw, err := orderedObject(data)
	if err != nil {
		return err
	}
	var meta Meta
	if m, ok := raw["_meta"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return fmt.Errorf("decode _meta: %w", err)
		}
	}
	bl := NewBuilder(meta)
	for _, k := range keys {
		switch k {
		case "_meta":
			continue
		case "misc":
			mkeys, mraw, err := orderedObject(raw[k])
			if err != nil {
				return fmt.Errorf("decode misc: %w", err)
			}
			for _, mk := range mkeys {
				e, err := decodeEntry(mk, mraw[mk])
				if err != nil {
					return err
				}
				bl.Misc(e)
			}
		default:
			e, err := decodeEntry(k, raw[k])
			if err != nil {
				return err
			}
			bl.Put(e)
		}
	}
	*b = *bl.Build()
	return nil
}

func decodeEntry(key string, raw json.RawMessage) (Entry, error) {
	var marker struct {
		Fail *Failure `json:"_fail"`
		Skip *string  `json:"_skip"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, &marker); err == nil {
			if marker.Fail != nil {
				return Entry{Key: key, Fail: marker.Fail}, nil
			}
			if marker.Skip != nil {
				return Entry{Key: key, Skip: *marker.Skip}, nil
			}
		}
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return Entry{Key: key, Payload: payload}, nil
}

// orderedObject splits a JSON object into its keys (in document order) and raw values.
func orderedObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	raw := map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		k, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", k, err)
		}
		if _, dup := raw[k]; !dup {
			keys = append(keys, k)
		}
		raw[k] = v
	}
	return keys, raw, nil
}

// SortedKeys is a small helper for deterministic iteration over maps.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
