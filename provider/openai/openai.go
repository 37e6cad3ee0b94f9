package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/models"
)

const (
	defaultBaseURL = "https://api.openai.com"
	chatPath       = "/v1/chat/completions"
)

// ErrMissingAPIKey is returned when no bearer credential is configured.
var ErrMissingAPIKey = errors.New("openai-compatible provider requires an api key")

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	// JSONMode requests response_format json_object.
	JSONMode bool
}

// client implements a chat call against any OpenAI-compatible API
type client struct {
	http        *transport.HTTPClient
	url         string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   int
	jsonMode    bool
}

// request represents a request to the chat completions endpoint
type request struct {
	Model          string               `json:"model"`
	Messages       []models.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// response represents a response from the chat completions endpoint
type response struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type message struct {
	Content json.RawMessage `json:"content"`
	Refusal *string         `json:"refusal"`
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(cfg Config) (*client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout < 5*time.Second {
		timeout = 5 * time.Second
	}
	connect := timeout / 2
	if connect > 10*time.Second {
		connect = 10 * time.Second
	}
	return &client{
		http:        transport.NewHTTPClient(timeout, connect, 0, 0),
		url:         base + chatPath,
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		jsonMode:    cfg.JSONMode,
	}, nil
}

func (c *client) Name() string  { return "openai" }
func (c *client) Model() string { return c.model }

// Chat sends the conversation and returns the assistant message text untouched.
func (c *client) Chat(ctx context.Context, messages []models.ChatMessage) (string, error) {
	req := request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	var resp response
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.url, headers, req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return ContentText(resp.Choices[0].Message.Content, resp.Choices[0].Message.Refusal), nil
}

// ContentText flattens a message content field: a plain string, an array of
// text parts, or (with no content) the refusal text.
func ContentText(content json.RawMessage, refusal *string) string {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" || trimmed == "null" {
		if refusal != nil {
			return *refusal
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(content, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			var str string
			if json.Unmarshal(p, &str) == nil {
				b.WriteString(str)
				continue
			}
			var chunk struct {
				Type    string  `json:"type"`
				Text    *string `json:"text"`
				Content *string `json:"content"`
			}
			if json.Unmarshal(p, &chunk) != nil {
				continue
			}
			switch {
			case (chunk.Type == "text" || chunk.Type == "output_text") && chunk.Text != nil:
				b.WriteString(*chunk.Text)
			case chunk.Content != nil:
				b.WriteString(*chunk.Content)
			}
		}
		return strings.TrimSpace(b.String())
	}
	if refusal != nil {
		return *refusal
	}
	return trimmed
}
