// Package llm talks to an OpenAI-compatible chat completions endpoint
// and extracts structured verdicts out of free-form replies.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/config"
	"github.com/XIONGPEILIN/pico-banana-400k-subject-driven/internal/ledger"
)

// HTTPDoer allows tests to fake HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs completion calls with timeout, retry and backoff.
// Every failed attempt is recorded in the ledger; the caller only sees
// "got content" or "gave up".
type Client struct {
	endpoint     string
	apiKey       string
	model        string
	maxNewTokens int
	maxRetries   int
	retryBackoff time.Duration
	httpClient   HTTPDoer
	ledger       *ledger.Ledger
	cache        *lru.Cache[string, string]
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// NewClient builds a client from resolved configuration. When httpClient
// is nil a real transport is created; loopback endpoints bypass any
// ambient proxy so the co-located inference server is always hit
// directly.
func NewClient(cfg config.Config, led *ledger.Ledger, httpClient HTTPDoer) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transportFor(cfg.ServerURL),
		}
	}

	c := &Client{
		endpoint:     cfg.ServerURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		maxNewTokens: cfg.MaxNewTokens,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		httpClient:   httpClient,
		ledger:       led,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, string](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create completion cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

func transportFor(endpoint string) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if isLoopbackEndpoint(endpoint) {
		transport.Proxy = nil
	}
	return transport
}

func isLoopbackEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Complete sends the prompt, retrying transport failures and empty
// replies up to the configured attempt budget. The second return value
// is false when every attempt failed; the reasons are already in the
// ledger by then.
func (c *Client) Complete(ctx context.Context, prompt string, itemIndex int) (string, bool) {
	if c.cache != nil {
		if content, ok := c.cache.Get(prompt); ok {
			return content, true
		}
	}

	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxNewTokens,
		Temperature: 0,
	})
	if err != nil {
		c.ledger.Record(itemIndex, fmt.Sprintf("[ERROR] Failed to encode request payload: %v", err), nil)
		return "", false
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, err := c.post(ctx, payload)
		if err != nil {
			c.ledger.Record(
				itemIndex,
				fmt.Sprintf("[ERROR] Request to LLM server failed on attempt %d/%d: %v", attempt, c.maxRetries, err),
				nil,
			)
		} else {
			content := extractEnvelopeContent(body)
			if content != "" {
				if c.cache != nil {
					c.cache.Add(prompt, content)
				}
				return content, true
			}
			c.ledger.Record(itemIndex, "[WARN] Empty response content.", map[string]any{"response": body})
		}

		if attempt < c.maxRetries {
			// Linear schedule: backoff scales with the attempt number.
			time.Sleep(c.retryBackoff * time.Duration(attempt))
		}
	}
	return "", false
}

// post performs one HTTP attempt and decodes the response envelope.
// Connection errors, timeouts, non-2xx statuses and undecodable bodies
// all count as transport failures.
func (c *Client) post(ctx context.Context, payload []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("server status %d", resp.StatusCode)
	}
	return body, nil
}

// extractEnvelopeContent pulls the reply text out of the response JSON:
// choices[0].message.content when choices is present and non-empty,
// otherwise a top-level content field, otherwise empty. Any other shape
// is treated as empty content.
func extractEnvelopeContent(body any) string {
	data, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	if choices, ok := data["choices"].([]any); ok && len(choices) > 0 {
		choice, ok := choices[0].(map[string]any)
		if !ok {
			return ""
		}
		message, ok := choice["message"].(map[string]any)
		if !ok {
			return ""
		}
		content, _ := message["content"].(string)
		return strings.TrimSpace(content)
	}
	content, _ := data["content"].(string)
	return strings.TrimSpace(content)
}
