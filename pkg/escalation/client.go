// Package escalation sends requests the rule engine could not decide to an
// external LLM for a second opinion. The caller supplies retrieved precedent
// context; the model returns a short verdict text.
package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sochq/rampart/pkg/config"
	"github.com/sochq/rampart/pkg/httputil"
)

// FallbackModel is the sentinel model name recorded when the provider is
// unreachable and the configured fallback verdict is used instead.
const FallbackModel = "fallback/rules-only"

// Verdicts used when the provider cannot be reached.
const (
	fallbackBenignVerdict = "Benign request – no malicious intent detected. (analysis service unavailable, rules-only verdict)"
	fallbackReviewVerdict = "Analysis service unavailable – manual review required."
)

const systemPrompt = `You are a SOC analyst.

Rules:
- If the request is clearly benign or generic text, respond EXACTLY with:
  "Benign request – no malicious intent detected."

- Only mark as malicious if there are concrete indicators
  (e.g. SQL keywords, script injection, traversal patterns).

- Do NOT guess.
- Do NOT over-classify.
`

// Result is the model's opinion on one request.
type Result struct {
	Verdict   string  `json:"analysis"`
	Model     string  `json:"model"`
	LatencyMs float64 `json:"latency_ms"`
	Fallback  bool    `json:"fallback,omitempty"`
}

// IsMalicious reports whether the verdict text flags an attack. Matches the
// phrasing the system prompt steers the model toward plus the generic case.
func (r Result) IsMalicious() bool {
	v := strings.ToLower(r.Verdict)
	return strings.Contains(v, "malicious request detected") || strings.Contains(v, "attack")
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client   *http.Client
	provider config.LLMProvider
	baseURL  string
	apiKey   string
	model    string
	fallback config.FallbackBehavior
}

// NewClient resolves the provider base URL the same way for every
// OpenAI-compatible backend; cfg.LLMBaseURL overrides when set.
func NewClient(cfg *config.Config) *Client {
	var baseURL string
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		baseURL = "http://localhost:11434/v1"
	case config.ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	default:
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLMBaseURL != "" {
		baseURL = cfg.LLMBaseURL
	}

	timeout := time.Duration(cfg.LLMTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:   httputil.NewClient(timeout),
		provider: cfg.LLMProvider,
		baseURL:  baseURL,
		apiKey:   cfg.LLMAPIKey,
		model:    cfg.LLMModel,
		fallback: cfg.FallbackBehavior,
	}
}

// Classify asks the model for a verdict on the request, with retrieved
// precedent lines as supporting context. Provider failures never fail the
// call: the configured fallback verdict is returned with FallbackModel so
// downstream can tell a real opinion from a degraded one.
func (c *Client) Classify(ctx context.Context, requestText, ragContext string) Result {
	start := time.Now()

	verdict, err := c.complete(ctx, requestText, ragContext)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Verdict:   c.fallbackVerdict(),
			Model:     FallbackModel,
			LatencyMs: latency,
			Fallback:  true,
		}
	}

	return Result{
		Verdict:   verdict,
		Model:     c.model,
		LatencyMs: latency,
	}
}

func (c *Client) complete(ctx context.Context, requestText, ragContext string) (string, error) {
	if c.provider != config.ProviderOllama && c.apiKey == "" {
		return "", fmt.Errorf("api key not configured for %s", c.provider)
	}

	if ragContext == "" {
		ragContext = "None"
	}
	userContent := fmt.Sprintf("HTTP REQUEST:\n%s\n\nRELATED CONTEXT (RAG):\n%s\n\nReturn a concise security verdict.", requestText, ragContext)

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.2,
		MaxTokens:   150,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if err := httputil.CheckResponse(resp, string(c.provider)+" chat"); err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion from %s", c.provider)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) fallbackVerdict() string {
	if c.fallback == config.FallbackReview {
		return fallbackReviewVerdict
	}
	return fallbackBenignVerdict
}
