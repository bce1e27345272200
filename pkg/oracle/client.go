// Package oracle adapts an external OpenAI-compatible chat completion
// service into the two operations the detection core needs: strict-JSON
// scam classification and free-text honeypot reply generation.
//
// The adapter never retries and never interprets failures: it reports
// *TransportError or *ParseError and leaves fallback policy to callers.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/saat-labs/trapline/pkg/httputil"
)

// Provider defines the backend inference service type.
type Provider string

const (
	ProviderGroq       Provider = "groq"
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
	ProviderCustom     Provider = "custom"
)

// Message is one turn of the conversation sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decision is the parsed classification payload the provider must return.
type Decision struct {
	IsScam     bool    `json:"is_scam"`
	ScamType   string  `json:"scam_type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Sampling constants. Classification wants determinism; generation wants a
// little texture. The token cap keeps honeypot replies SMS-sized.
const (
	classifyTemperature = 0.0
	generateTemperature = 0.6
	generateMaxTokens   = 40
)

// ClientConfig configures the oracle client.
type ClientConfig struct {
	Provider Provider
	APIKey   string        // optional for Ollama
	Model    string
	BaseURL  string        // optional override
	Timeout  time.Duration // request deadline, defaults to 8s
	// MaxInFlight caps concurrent calls to the provider (default 32).
	MaxInFlight int
}

// Client talks to one OpenAI-compatible /chat/completions endpoint.
type Client struct {
	client   *http.Client
	inflight *httputil.Semaphore
	provider Provider
	baseURL  string
	apiKey   string
	model    string
}

// NewClient creates an oracle client for the configured provider.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		if cfg.Provider == ProviderOllama {
			cfg.Model = "qwen2.5:7b"
		} else {
			cfg.Model = "llama-3.1-8b-instant"
		}
	}

	var baseURL string
	switch cfg.Provider {
	case ProviderOllama:
		baseURL = "http://localhost:11434/v1" // OpenAI compatible endpoint of Ollama
	case ProviderOpenRouter:
		baseURL = "https://openrouter.ai/api/v1"
	case ProviderGroq:
		fallthrough
	default:
		baseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 32
	}

	return &Client{
		client:   httputil.NewClient(timeout),
		inflight: httputil.NewSemaphore(maxInFlight),
		provider: cfg.Provider,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

// Classify sends the instruction frame plus conversation and requires a
// single strict-JSON object with the is_scam/scam_type/confidence/reason
// fields. Non-JSON or missing fields yield *ParseError; network, timeout and
// provider errors yield *TransportError.
func (c *Client) Classify(ctx context.Context, system string, conv []Message) (*Decision, error) {
	msgs := make([]Message, 0, len(conv)+1)
	msgs = append(msgs, Message{Role: "system", Content: system})
	msgs = append(msgs, conv...)

	raw, err := c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: classifyTemperature,
	})
	if err != nil {
		return nil, &TransportError{Op: "classify", Err: err}
	}

	clean := extractJSON(raw)

	var payload struct {
		IsScam     *bool    `json:"is_scam"`
		ScamType   *string  `json:"scam_type"`
		Confidence *float64 `json:"confidence"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if payload.IsScam == nil || payload.ScamType == nil || payload.Confidence == nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("missing required decision fields")}
	}

	return &Decision{
		IsScam:     *payload.IsScam,
		ScamType:   *payload.ScamType,
		Confidence: *payload.Confidence,
		Reason:     payload.Reason,
	}, nil
}

// Generate sends the persona frame plus conversation, anchoring the reply
// with a trailing assistant seed turn, and returns the trimmed completion.
// All failures are *TransportError; nothing is parsed.
func (c *Client) Generate(ctx context.Context, system string, conv []Message, seed string) (string, error) {
	msgs := make([]Message, 0, len(conv)+2)
	msgs = append(msgs, Message{Role: "system", Content: system})
	msgs = append(msgs, conv...)
	if seed != "" {
		msgs = append(msgs, Message{Role: "assistant", Content: seed})
	}

	raw, err := c.complete(ctx, chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
	})
	if err != nil {
		return "", &TransportError{Op: "generate", Err: err}
	}
	return strings.TrimSpace(raw), nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	if err := c.inflight.Acquire(ctx); err != nil {
		return "", err
	}
	defer c.inflight.Release()

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return result.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences or prose surrounding a JSON object.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}
