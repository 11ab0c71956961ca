package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const chatCompletionsPath = "/chat/completions"

// ClientOptions parameterise the HTTP model clients.
type ClientOptions struct {
	Name              string
	BaseURL           string
	APIKey            string
	EndpointID        string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

func (o ClientOptions) limiter() *rate.Limiter {
	if o.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(o.RequestsPerSecond), 1)
}

func (o ClientOptions) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ChatClient speaks the OpenAI-compatible chat completions protocol. The
// doubao (ark), openai and deepseek endpoints all use it.
type ChatClient struct {
	opts    ClientOptions
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewChatClient constructs a chat completions client.
func NewChatClient(opts ClientOptions, logger zerolog.Logger) *ChatClient {
	return &ChatClient{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.httpClient(),
		limiter: opts.limiter(),
		logger:  logger.With().Str("component", "ai_chat").Str("provider", opts.Name).Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the prompt as a single user message.
func (c *ChatClient) Complete(ctx context.Context, req Request) (Completion, error) {
	if c.baseURL == "" {
		return Completion{}, errors.New("base url not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}

	model := req.Model
	// ark endpoint ids (ep-xxx) replace plain model names when configured
	if c.opts.EndpointID != "" && !strings.HasPrefix(model, "ep-") {
		model = c.opts.EndpointID
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	payload, status, err := doRequest(c.client, httpReq)
	if err != nil {
		return Completion{}, err
	}
	if status != http.StatusOK {
		return Completion{}, parseHTTPError(c.opts.Name, status, payload)
	}

	var res chatResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Completion{}, fmt.Errorf("decode chat response: %w", err)
	}

	content := "{}"
	if len(res.Choices) > 0 && res.Choices[0].Message.Content != "" {
		content = res.Choices[0].Message.Content
	}

	c.logger.Debug().Str("model", model).Int("tokens", res.Usage.TotalTokens).Msg("chat completion received")
	return Completion{Content: content, TokensUsed: res.Usage.TotalTokens}, nil
}

func doRequest(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return payload, resp.StatusCode, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Error.Message)
		}
		if apiErr.Error.Type != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Error.Type)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", provider, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", provider, status)
}
