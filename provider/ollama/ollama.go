// Package ollama talks to a self-hosted chat daemon reachable at one of several
// candidate addresses.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/apilog/internal/transport"
	"github.com/mohammad-safakhou/apilog/models"
)

const (
	// DockerAddress is the well-known service address inside a compose network.
	DockerAddress = "http://ollama:11434"
	// LocalAddress is the loopback default.
	LocalAddress = "http://localhost:11434"

	chatPath = "/api/chat"
)

// Error codes surfaced in report metadata.
const (
	CodeUnreachable = "ollama_unreachable"
	CodeNotFound    = "model_not_found"
	CodeDownloading = "model_downloading"
)

type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	InDocker bool
}

type Client struct {
	http       *transport.HTTPClient
	candidates []string
	model      string
}

type chatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Format   string               `json:"format,omitempty"`
}

type chatResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Candidates returns the ordered base addresses to try: the configured endpoint,
// the in-container address when running in docker, then loopback.
func Candidates(endpoint string, inDocker bool) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimRight(strings.TrimSpace(s), "/")
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}
	add(endpoint)
	if inDocker {
		add(DockerAddress)
	}
	add(LocalAddress)
	return out
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout < 10*time.Second {
		timeout = 10 * time.Second
	}
	connect := timeout / 2
	if connect > 15*time.Second {
		connect = 15 * time.Second
	}
	return &Client{
		http:       transport.NewHTTPClient(timeout, connect, 0, 0),
		candidates: Candidates(cfg.Endpoint, cfg.InDocker),
		model:      cfg.Model,
	}
}

// WithCandidates overrides the address list.
func (c *Client) WithCandidates(addrs ...string) *Client {
	c.candidates = append([]string(nil), addrs...)
	return c
}

func (c *Client) Name() string  { return "ollama" }
func (c *Client) Model() string { return c.model }

// Chat tries every candidate, first with format=json then plain, and returns the
// first non-empty message body. At most len(candidates)*2 requests are made.
func (c *Client) Chat(ctx context.Context, messages []models.ChatMessage) (string, error) {
	var lastErr error
	for _, base := range c.candidates {
		for _, jsonMode := range []bool{true, false} {
			req := chatRequest{Model: c.model, Messages: messages, Stream: false}
			if jsonMode {
				req.Format = "json"
			}
			var resp chatResponse
			if err := c.http.DoJSON(ctx, http.MethodPost, base+chatPath, nil, req, &resp); err != nil {
				lastErr = err
				if ctx.Err() != nil {
					return "", fmt.Errorf("ollama call failed: %w", lastErr)
				}
				continue
			}
			if resp.Message != nil && strings.TrimSpace(resp.Message.Content) != "" {
				return resp.Message.Content, nil
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("empty response")
	}
	return "", fmt.Errorf("ollama call failed: %w", lastErr)
}

// Classify maps an ollama failure onto a short status code, or "" when the
// failure is not recognised.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	var se *transport.StatusError
	if errors.As(err, &se) {
		body := strings.ToLower(se.Body)
		if se.Code == http.StatusNotFound || mentionsMissingModel(body) {
			return CodeNotFound
		}
		if se.Code >= 500 || mentionsDownload(body) {
			return CodeDownloading
		}
	}

	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		if strings.Contains(msg, "disconnect") {
			return CodeDownloading
		}
		return CodeUnreachable
	}

	switch {
	case mentionsMissingModel(msg):
		return CodeNotFound
	case mentionsDownload(msg) || strings.Contains(msg, "disconnect"):
		return CodeDownloading
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return CodeUnreachable
	}
	return ""
}

func mentionsMissingModel(s string) bool {
	return strings.Contains(s, "model not found") || strings.Contains(s, "no such model") || strings.Contains(s, "unknown model")
}

func mentionsDownload(s string) bool {
	return strings.Contains(s, "pull") || strings.Contains(s, "downloading") || strings.Contains(s, "waiting for model")
}
