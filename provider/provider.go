package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohammad-safakhou/apilog/models"
	openai_provider "github.com/mohammad-safakhou/apilog/provider/openai"
	"github.com/mohammad-safakhou/apilog/provider/ollama"
)

// Client represents the supported model backends
type Client string

const (
	OpenAI   Client = "openai"
	Ollama   Client = "ollama"
	Disabled Client = "disabled"
)

// ErrDisabled is returned by NewProvider when no backend is configured.
var ErrDisabled = errors.New("llm provider disabled")

// Provider is the interface that all model backends must satisfy
type Provider interface {
	Name() string
	Model() string
	// Chat returns the raw assistant text. Callers must treat it as untrusted.
	Chat(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Settings is everything needed to pick and build a backend.
type Settings struct {
	Provider    string
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	InDocker    bool
}

// Resolve maps a configured provider name onto a backend.
//
// Empty or "auto" picks openai when a key is set, ollama when only an endpoint is
// set, otherwise disabled. A "local" provider pointed at an openai endpoint with a
// key is treated as openai. Unknown names fall through to ollama.
func Resolve(name, apiKey, endpoint string) Client {
	name = strings.ToLower(strings.TrimSpace(name))
	key := strings.TrimSpace(apiKey)
	ep := strings.ToLower(strings.TrimSpace(endpoint))
	openaiEndpoint := key != "" && strings.Contains(ep, "openai")

	switch name {
	case "", "auto":
		if key != "" {
			return OpenAI
		}
		if ep != "" {
			return Ollama
		}
		return Disabled
	case "openai", "openai_compat", "gpt", "azure_openai", "vllm":
		return OpenAI
	case "ollama", "local":
		if openaiEndpoint {
			return OpenAI
		}
		return Ollama
	case "none", "disabled":
		return Disabled
	}
	if openaiEndpoint {
		return OpenAI
	}
	return Ollama
}

// NewProvider creates the backend selected by s. It returns ErrDisabled when the
// configuration resolves to no backend.
func NewProvider(s Settings) (Provider, error) {
	switch Resolve(s.Provider, s.APIKey, s.Endpoint) {
	case OpenAI:
		c, err := openai_provider.NewOpenAIClient(openai_provider.Config{
			BaseURL:     s.Endpoint,
			APIKey:      s.APIKey,
			Model:       s.Model,
			Temperature: s.Temperature,
			MaxTokens:   s.MaxTokens,
			Timeout:     s.Timeout,
			JSONMode:    true,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case Ollama:
		return ollama.New(ollama.Config{
			Endpoint: s.Endpoint,
			Model:    s.Model,
			Timeout:  s.Timeout,
			InDocker: s.InDocker,
		}), nil
	default:
		return nil, ErrDisabled
	}
}

// ErrorCode returns a short machine-readable code for a backend failure, when the
// backend knows one.
func ErrorCode(p Provider, err error) string {
	if p == nil || err == nil {
		return ""
	}
	if p.Name() == string(Ollama) {
		return ollama.Classify(err)
	}
	return ""
}
