package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/models"
)

func TestCandidates(t *testing.T) {
	got := Candidates("http://gpu:11434/", true)
	want := []string{"http://gpu:11434", DockerAddress, LocalAddress}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := Candidates("", false); !reflect.DeepEqual(got, []string{LocalAddress}) {
		t.Fatalf("unexpected default candidates %v", got)
	}
	if got := Candidates(LocalAddress, false); len(got) != 1 {
		t.Fatalf("expected dedupe, got %v", got)
	}
}

func TestChat_FallsBackToPlainModeAndNextCandidate(t *testing.T) {
	var mu sync.Mutex
	var formats []string

	// first candidate is down
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer dead.Close()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != false {
			t.Errorf("expected stream=false")
		}
		format, _ := req["format"].(string)
		mu.Lock()
		formats = append(formats, format)
		mu.Unlock()
		if format == "json" {
			_, _ = w.Write([]byte(`{"message":{"content":"  "}}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":{"content":"{\"title\":\"x\"}"}}`))
	}))
	defer live.Close()

	c := New(Config{Model: "llama3"}).WithCandidates(dead.URL, live.URL)
	out, err := c.Chat(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != `{"title":"x"}` {
		t.Fatalf("unexpected content %q", out)
	}
	if !reflect.DeepEqual(formats, []string{"json", ""}) {
		t.Fatalf("expected json then plain mode, got %v", formats)
	}
}

func TestChat_AllCandidatesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{Model: "missing"}).WithCandidates(srv.URL)
	_, err := c.Chat(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if code := Classify(err); code != CodeNotFound {
		t.Fatalf("expected %s, got %q (%v)", CodeNotFound, code, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "404", err: &transport.StatusError{Code: 404, Status: "404 Not Found"}, want: CodeNotFound},
		{name: "503", err: &transport.StatusError{Code: 503, Status: "503"}, want: CodeDownloading},
		{name: "pull body", err: &transport.StatusError{Code: 400, Body: "pulling manifest"}, want: CodeDownloading},
		{name: "refused", err: fmt.Errorf("ollama call failed: %w", errors.New("dial tcp: connection refused")), want: CodeUnreachable},
		{name: "deadline", err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded), want: CodeUnreachable},
		{name: "other", err: errors.New("weird"), want: ""},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}
