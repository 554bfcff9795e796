package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/stacks/internal/domain"
)

type GenAIClient struct {
	client    *genai.Client
	modelName string
}

var _ domain.LLMClient = (*GenAIClient)(nil)

// GenAIConfig selects the backend. An APIKey means the Gemini API; otherwise
// Vertex AI is used with Project and Location.
type GenAIConfig struct {
	APIKey    string
	Project   string
	Location  string
	ModelName string
}

// NewGenAIClient creates an LLMClient backed by Gemini.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenAIClientFrom(client, cfg.ModelName), nil
}

// NewGenAIClientFrom wraps an existing client, sharing it with embeddings.
func NewGenAIClientFrom(client *genai.Client, modelName string) *GenAIClient {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GenAIClient{
		client:    client,
		modelName: modelName,
	}
}

// NewClient builds the shared genai client for generation and embeddings.
func NewClient(ctx context.Context, cfg GenAIConfig) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIKey == "" {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("genai: project and location are required without an API key")
		}
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return client, nil
}

// Complete implements domain.LLMClient.
func (g *GenAIClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	// History replayed as conversation turns
	var contents []*genai.Content
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Author == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	temp := req.Temperature
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w: %w", domain.ErrUpstream, err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("genai returned empty text: %w", domain.ErrUpstream)
	}

	return text, nil
}
