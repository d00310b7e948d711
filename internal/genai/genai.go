// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps the chat-completion endpoint used for reply generation and the
// embedding endpoint used by the document index and context retriever.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// Default models used when none are configured.
const (
	DefaultChatModel      = openai.ChatModelGPT4o
	DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// embeddingService defines the minimal interface for embeddings.
type embeddingService interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// ClientInterface captures the operations other modules need from the GenAI
// client, so tests can substitute mocks.
type ClientInterface interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey         string
	Organization   string
	Project        string
	ChatModel      openai.ChatModel
	EmbeddingModel openai.EmbeddingModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithOrganization sets the OpenAI organization identifier.
func WithOrganization(org string) Option {
	return func(o *Opts) { o.Organization = org }
}

// WithProject sets the OpenAI project identifier.
func WithProject(project string) Option {
	return func(o *Opts) { o.Project = project }
}

// WithChatModel overrides the chat-completion model.
func WithChatModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.ChatModel = model }
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model openai.EmbeddingModel) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// Client wraps the OpenAI chat-completion and embedding services.
type Client struct {
	chat           chatService
	embeddings     embeddingService
	chatModel      openai.ChatModel
	embeddingModel openai.EmbeddingModel
}

// NewClient initializes a new GenAI client. Options fall back to the
// OPENAI_API_KEY, OPENAI_ORG_ID, and OPENAI_PROJECT_ID environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Organization == "" {
		cfg.Organization = os.Getenv("OPENAI_ORG_ID")
	}
	if cfg.Project == "" {
		cfg.Project = os.Getenv("OPENAI_PROJECT_ID")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	slog.Debug("GenAI client config loaded",
		"api_key_set", cfg.APIKey != "",
		"organization_set", cfg.Organization != "",
		"project_set", cfg.Project != "",
		"chat_model", cfg.ChatModel,
		"embedding_model", cfg.EmbeddingModel)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.Organization))
	}
	if cfg.Project != "" {
		reqOpts = append(reqOpts, option.WithProject(cfg.Project))
	}
	cli := openai.NewClient(reqOpts...)

	return &Client{
		chat:           &cli.Chat.Completions,
		embeddings:     &cli.Embeddings,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		slog.Error("Client.GeneratePrompt: chat completion failed", "error", err, "model", c.chatModel)
		return "", fmt.Errorf("%w: %v", models.ErrUpstreamGeneration, err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("Client.GeneratePrompt: no choices returned", "model", c.chatModel)
		return "", fmt.Errorf("%w: no choices returned", models.ErrUpstreamGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbedText embeds a single text and returns its fixed-dimension vector.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds a batch of texts in one request and returns the vectors in
// input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		slog.Error("Client.EmbedTexts: embedding request failed", "error", err, "model", c.embeddingModel, "texts", len(texts))
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		slog.Error("Client.EmbedTexts: embedding count mismatch", "model", c.embeddingModel, "want", len(texts), "got", len(resp.Data))
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	vecs := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vecs) {
			idx = i
		}
		vecs[idx] = d.Embedding
	}
	return vecs, nil
}
