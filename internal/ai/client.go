// Package ai talks to an OpenAI-compatible chat completion backend. Calls
// are stateless except for optional session-scoped history kept in the
// counter store with a TTL, and every call consumes one unit of the
// process-wide AI request budget.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/quota"
	"github.com/reviewloop/reviewloop/internal/store"
)

// ErrQuotaExceeded is returned when either the local AI request budget or
// the backend's own rate limit is exhausted.
var ErrQuotaExceeded = errors.New("ai request quota exceeded")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the completion backend collaborator.
type Client interface {
	// Chat sends the messages and returns the completion text. A non-empty
	// sessionID threads previous turns of that session into the request and
	// records the new exchange.
	Chat(ctx context.Context, messages []Message, sessionID string) (string, error)
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// HTTPClient implements Client against an OpenAI-compatible HTTP API.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	chatTTL     time.Duration

	http   *retryablehttp.Client
	store  store.Store
	ledger *quota.Ledger
	budget int
}

// NewHTTPClient creates a completion client from config. The ledger bounds
// requests per hour; the store holds session history.
func NewHTTPClient(cfg config.AIConfig, s store.Store, ledger *quota.Ledger, budget int) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.Timeout()
	// Retry transport failures and 5xx only; 429 must surface as a
	// distinguishable quota failure, not be retried away.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp.StatusCode >= 500, nil
	}

	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		chatTTL:     cfg.ChatTTL(),
		http:        rc,
		store:       s,
		ledger:      ledger,
		budget:      budget,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func historyKey(sessionID string) string {
	return "chat:history:" + sessionID
}

// Chat implements Client.
func (c *HTTPClient) Chat(ctx context.Context, messages []Message, sessionID string) (string, error) {
	if !c.ledger.CheckAndIncrement(ctx, quota.AIRequestsKey(), c.budget) {
		return "", fmt.Errorf("%w: hourly limit %d", ErrQuotaExceeded, c.budget)
	}

	chat := make([]Message, 0, len(messages))
	if sessionID != "" {
		history, err := c.History(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("loading chat history: %w", err)
		}
		chat = append(chat, history...)
	}
	chat = append(chat, messages...)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    chat,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: backend rate limited", ErrQuotaExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API error (status %d): %s", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	text := parsed.Choices[0].Message.Content

	if sessionID != "" {
		chat = append(chat, Message{Role: "assistant", Content: text})
		if err := c.store.PutJSON(ctx, historyKey(sessionID), chat, c.chatTTL); err != nil {
			return "", fmt.Errorf("saving chat history: %w", err)
		}
	}

	return text, nil
}

// History returns the recorded turns of a session, oldest first.
func (c *HTTPClient) History(ctx context.Context, sessionID string) ([]Message, error) {
	var history []Message
	if _, err := c.store.GetJSON(ctx, historyKey(sessionID), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// ClearHistory removes a session's recorded turns.
func (c *HTTPClient) ClearHistory(ctx context.Context, sessionID string) error {
	return c.store.Delete(ctx, historyKey(sessionID))
}
