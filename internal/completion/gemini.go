package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/mockinterview/internal/prompt"
)

const defaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	models contentGenerator
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiBackend(client.Models, model), nil
}

func newGeminiBackend(models contentGenerator, model string) *GeminiBackend {
	if model = strings.TrimSpace(model); !strings.HasPrefix(model, "gemini") {
		model = defaultGeminiModel
	}
	return &GeminiBackend{models: models, model: model}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case prompt.RoleSystem:
			system = append(system, m.Content)
		case prompt.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(contents) == 0 {
		// Gemini needs at least one user turn; a system-only request becomes one.
		contents = append(contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser))
	} else if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	model := b.model
	if strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}

	resp, err := b.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: b.Name(), StatusCode: apiErr.Code, Detail: apiErr.Status}
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", &StatusError{Provider: b.Name(), StatusCode: apiErrPtr.Code, Detail: apiErrPtr.Status}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(strings.TrimSpace(part.Text))
		}
		// Only the first usable candidate is the reply.
		if builder.Len() > 0 {
			break
		}
	}
	if builder.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return builder.String(), nil
}
