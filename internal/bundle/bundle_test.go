package bundle

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNormalize_Shapes(t *testing.T) {
	t.Parallel()
	row := map[string]any{"path": "/a"}
	tests := []struct {
		name    string
		payload any
		want    int
	}{
		{name: "bare list", payload: []any{row, row}, want: 2},
		{name: "rows", payload: map[string]any{"rows": []any{row}}, want: 1},
		{name: "data", payload: map[string]any{"data": []any{row, row, row}}, want: 3},
		{name: "items", payload: map[string]any{"items": []any{row}}, want: 1},
		{name: "buckets", payload: map[string]any{"buckets": []any{row, row}}, want: 2},
		{name: "scalar", payload: "nope", want: 0},
		{name: "object without list", payload: map[string]any{"total": 3.0}, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := len(Normalize(tt.payload)); got != tt.want {
				t.Fatalf("expected %d rows, got %d", tt.want, got)
			}
		})
	}
}

func TestNormalize_ScalarItems(t *testing.T) {
	rows := Normalize([]any{"/a", 3.0})
	if len(rows) != 2 || rows[0]["value"] != "/a" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestTrim_CapsRowsAndBuckets(t *testing.T) {
	rows := make([]any, 100)
	buckets := make([]any, 70)
	in := map[string]any{"rows": rows, "buckets": buckets, "total": 1.0}
	out := Trim(in, DefaultRowCap, DefaultBucketCap).(map[string]any)
	if n := len(out["rows"].([]any)); n != 80 {
		t.Fatalf("expected 80 rows, got %d", n)
	}
	if n := len(out["buckets"].([]any)); n != 60 {
		t.Fatalf("expected 60 buckets, got %d", n)
	}
	if len(in["rows"].([]any)) != 100 {
		t.Fatalf("input was modified")
	}
	bare := Trim(make([]any, 90), DefaultRowCap, DefaultBucketCap).([]any)
	if len(bare) != 80 {
		t.Fatalf("expected bare list capped at 80, got %d", len(bare))
	}
}

func TestNumber(t *testing.T) {
	r := Row{"a": 1.5, "b": "40%", "c": "x", "d": nil}
	if v, ok := Number(r, "a"); !ok || v != 1.5 {
		t.Fatalf("a: got %v %v", v, ok)
	}
	if v, ok := Number(r, "b"); !ok || v != 40 {
		t.Fatalf("b: got %v %v", v, ok)
	}
	if _, ok := Number(r, "c", "d", "missing"); ok {
		t.Fatalf("expected no number")
	}
	if v, ok := Number(r, "missing", "a"); !ok || v != 1.5 {
		t.Fatalf("fallback key: got %v %v", v, ok)
	}
}

func TestWidgetBundle_MissingAndAvailable(t *testing.T) {
	b := NewBuilder(Meta{Base: "http://x/api/query"}).
		Add("daily_count", map[string]any{"rows": []any{}}).
		Fail("device_share", errors.New("boom"), "http://x/api/query/device-share").
		Skip("top_buttons_by_path", "no path candidates").
		Build()
	if got := b.Available(); !reflect.DeepEqual(got, []string{"daily_count"}) {
		t.Fatalf("available: %v", got)
	}
	if got := b.Missing(); !reflect.DeepEqual(got, []string{"device_share", "top_buttons_by_path"}) {
		t.Fatalf("missing: %v", got)
	}
	if rows := b.Rows("device_share"); rows != nil {
		t.Fatalf("failed entry should have no rows")
	}
}

func TestWidgetBundle_JSONRoundTripKeepsOrder(t *testing.T) {
	b := NewBuilder(Meta{Base: "http://x", Discovered: []string{"/a"}}).
		Add("zeta", []any{map[string]any{"n": 1.0}}).
		Add("alpha", map[string]any{"rows": []any{}}).
		Fail("mid", errors.New("timeout"), "http://x/mid").
		Skip("skip", "no path candidates").
		Misc(Entry{Key: "extra_thing", Payload: map[string]any{"ok": true}}).
		Build()

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"_meta":{"base":"http://x","discovered":["/a"]},"zeta":[{"n":1}],"alpha":{"rows":[]},` +
		`"mid":{"_fail":{"error":"timeout","url":"http://x/mid"}},"skip":{"_skip":"no path candidates"},` +
		`"misc":{"extra_thing":{"ok":true}}}`
	if string(data) != want {
		t.Fatalf("unexpected encoding:\n%s", data)
	}

	var back WidgetBundle
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := back.Keys(); !reflect.DeepEqual(got, []string{"zeta", "alpha", "mid", "skip"}) {
		t.Fatalf("keys out of order: %v", got)
	}
	if e, _ := back.Get("mid"); e.Fail == nil || e.Fail.Error != "timeout" {
		t.Fatalf("failure marker lost: %#v", e)
	}
	if len(back.Misc()) != 1 {
		t.Fatalf("misc lost")
	}
	again, _ := json.Marshal(&back)
	if string(again) != want {
		t.Fatalf("re-encoding differs:\n%s", again)
	}
}
