package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"AcadFinAudit/internal/config"
)

// Client talks to an OpenAI-compatible chat/embedding endpoint. Calls
// are retried a fixed number of times with a fixed backoff, matching
// the office's hosted-gateway behaviour (transient 5xx under load).
type Client struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	Retries    int
	Backoff    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.Retries = attempts
		c.Backoff = backoff
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClientFromEnv reads OPENAI_API_KEY / OPENAI_API_BASE / OPENAI_MODEL /
// OPENAI_EMBEDDING_MODEL with the usual defaults.
func NewClientFromEnv(opts ...Option) *Client {
	c := &Client{
		BaseURL:    os.Getenv("OPENAI_API_BASE"),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		ChatModel:  os.Getenv("OPENAI_MODEL"),
		EmbedModel: os.Getenv("OPENAI_EMBEDDING_MODEL"),
		Retries:    config.DefaultLLMRetryAttempts,
		Backoff:    config.DefaultLLMRetryBackoff,
		httpClient: &http.Client{Timeout: config.DefaultRequestTimeout},
	}
	if c.BaseURL == "" {
		c.BaseURL = config.DefaultLLMBaseURL
	}
	if c.ChatModel == "" {
		c.ChatModel = config.DefaultChatModel
	}
	if c.EmbedModel == "" {
		c.EmbedModel = config.DefaultEmbeddingModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ChatCompletion runs one temperature-0 completion and returns the
// assistant message text.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{Model: c.ChatModel, Messages: messages, Temperature: 0}
	var out chatResponse
	if err := c.postWithRetry(ctx, "/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := embeddingRequest{Model: c.EmbedModel, Input: texts}
	var out embeddingResponse
	if err := c.postWithRetry(ctx, "/embeddings", reqBody, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embedding error: %s", out.Error.Message)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d got %d", len(texts), len(out.Data))
	}
	vecs := make([][]float64, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index out of range: %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (c *Client) postWithRetry(ctx context.Context, path string, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	attempts := c.Retries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.Backoff):
			}
		}
		lastErr = c.post(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		// 4xx responses are not retried, the request itself is wrong
		var se *statusError
		if errors.As(lastErr, &se) && se.Code >= 400 && se.Code < 500 {
			return lastErr
		}
	}
	return lastErr
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request failed with status %d: %s", e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return &statusError{Code: resp.StatusCode, Body: msg}
	}
	return json.Unmarshal(body, out)
}
