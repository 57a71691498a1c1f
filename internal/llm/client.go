package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dbanalyst/dbanalyst/internal/observability"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	Timeout        time.Duration
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message {
	return Message{Role: "system", Content: content}
}

func User(content string) Message {
	return Message{Role: "user", Content: content}
}

// Error reports a failed call to the model provider. Transport is true when
// the provider could not be reached or answered with a 5xx or 429.
type Error struct {
	Op         string
	StatusCode int
	Transport  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsTransport(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Transport
}

// Client speaks the OpenAI-compatible chat completions and embeddings API.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	embeddingModel string
	temperature    float64
	client         *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    cfg.Temperature,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Complete returns the content of the first choice. An empty model uses the
// client default.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	payload := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": c.temperature,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.post(ctx, "chat completion", "/v1/chat/completions", payload, &parsed)
	if err == nil && len(parsed.Choices) == 0 {
		err = &Error{Op: "chat completion", Err: errors.New("empty chat completion choices")}
	}
	observability.IncrementLLMRequest("chat", err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	payload := map[string]any{
		"model": c.embeddingModel,
		"input": inputs,
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.post(ctx, "embeddings", "/v1/embeddings", payload, &parsed)
	if err == nil && len(parsed.Data) != len(inputs) {
		err = &Error{Op: "embeddings", Err: fmt.Errorf("got %d embeddings for %d inputs", len(parsed.Data), len(inputs))}
	}
	observability.IncrementLLMRequest("embeddings", err)
	if err != nil {
		return nil, err
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vectors := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &Error{Op: op, Transport: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Transport: true, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Transport:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:        errors.New(strings.TrimSpace(string(rawRespBody))),
		}
	}
	if err := json.Unmarshal(rawRespBody, out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
