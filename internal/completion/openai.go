package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/mockinterview/internal/prompt"
)

// OpenAIBackend talks to any OpenAI-compatible /chat/completions endpoint
// (Cerebras, OpenRouter, LiteLLM, OpenAI).
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOpenAIBackend(baseURL, apiKey string, client *http.Client) *OpenAIBackend {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		// The gateway owns the deadline through ctx.
		client = &http.Client{}
	}
	return &OpenAIBackend{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []prompt.Message  `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	payload := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if payload.Model == "" {
		payload.Model = DefaultModel
	}
	if req.JSON {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	res, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail := strings.TrimSpace(string(respBody))
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != nil {
			detail = apiErr.Error.Message
		}
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return "", &StatusError{Provider: b.Name(), StatusCode: res.StatusCode, Detail: detail}
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodableResponse, err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
