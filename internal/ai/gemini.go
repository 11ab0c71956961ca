package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	opts    ClientOptions
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGeminiClient constructs a Gemini client. BaseURL points at .../v1beta/models.
func NewGeminiClient(opts ClientOptions, logger zerolog.Logger) *GeminiClient {
	if opts.Name == "" {
		opts.Name = "gemini"
	}
	return &GeminiClient{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.httpClient(),
		limiter: opts.limiter(),
		logger:  logger.With().Str("component", "ai_gemini").Logger(),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends the prompt as a single content part.
func (g *GeminiClient) Complete(ctx context.Context, req Request) (Completion, error) {
	if g.baseURL == "" {
		return Completion{}, errors.New("base url not configured")
	}
	if req.Model == "" {
		return Completion{}, errors.New("model not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}

	var payload geminiRequest
	payload.Contents = []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}}
	payload.GenerationConfig.Temperature = g.opts.Temperature
	payload.GenerationConfig.MaxOutputTokens = g.opts.MaxTokens

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, url.PathEscape(req.Model), url.QueryEscape(g.opts.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, status, err := doRequest(g.client, httpReq)
	if err != nil {
		return Completion{}, err
	}
	if status != http.StatusOK {
		return Completion{}, parseHTTPError(g.opts.Name, status, raw)
	}

	var res geminiResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return Completion{}, fmt.Errorf("decode gemini response: %w", err)
	}

	content := "{}"
	if len(res.Candidates) > 0 && len(res.Candidates[0].Content.Parts) > 0 && res.Candidates[0].Content.Parts[0].Text != "" {
		content = res.Candidates[0].Content.Parts[0].Text
	}
	tokens := res.UsageMetadata.PromptTokenCount + res.UsageMetadata.CandidatesTokenCount

	g.logger.Debug().Str("model", req.Model).Int("tokens", tokens).Msg("gemini completion received")
	return Completion{Content: content, TokensUsed: tokens}, nil
}
