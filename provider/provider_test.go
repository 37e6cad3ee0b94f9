package provider

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, provider, key, endpoint string
		want                          Client
	}{
		{name: "auto with key", provider: "", key: "sk", want: OpenAI},
		{name: "auto with endpoint", provider: "auto", endpoint: "http://gpu:11434", want: Ollama},
		{name: "auto nothing", provider: "auto", want: Disabled},
		{name: "alias gpt", provider: "GPT", want: OpenAI},
		{name: "alias vllm", provider: "vllm", want: OpenAI},
		{name: "local", provider: "local", endpoint: "http://localhost:11434", want: Ollama},
		{name: "local pointed at openai", provider: "local", key: "sk", endpoint: "https://api.openai.com", want: OpenAI},
		{name: "none", provider: "none", key: "sk", want: Disabled},
		{name: "unknown", provider: "mystery", want: Ollama},
		{name: "unknown with openai endpoint", provider: "mystery", key: "sk", endpoint: "https://my.openai.azure.com", want: OpenAI},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tt.provider, tt.key, tt.endpoint); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(Settings{Provider: "disabled"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	p, err := NewProvider(Settings{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "ollama" || p.Model() != "llama3" {
		t.Fatalf("unexpected provider %s/%s", p.Name(), p.Model())
	}
	if _, err := NewProvider(Settings{Provider: "openai"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	p, err = NewProvider(Settings{Provider: "openai", APIKey: "sk", Model: "gpt-4o-mini"})
	if err != nil || p.Name() != "openai" {
		t.Fatalf("unexpected openai provider: %v %v", p, err)
	}
}
