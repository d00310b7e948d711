package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lovelydeco/TallerBot/internal/models"
)

// mockChatService simulates chat completions
type mockChatService struct {
	resp *openai.ChatCompletion
	err  error
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return m.resp, m.err
}

// mockEmbeddingService simulates embeddings
type mockEmbeddingService struct {
	resp *openai.CreateEmbeddingResponse
	err  error
}

func (m *mockEmbeddingService) New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	return m.resp, m.err
}

func TestGeneratePrompt_Success(t *testing.T) {
	mockResp := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hola Mundo"}},
		},
	}
	c := &Client{chat: &mockChatService{resp: mockResp}, chatModel: DefaultChatModel}
	out, err := c.GeneratePrompt(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hola Mundo" {
		t.Errorf("expected %q, got %q", "Hola Mundo", out)
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	c := &Client{chat: &mockChatService{err: errors.New("boom")}, chatModel: DefaultChatModel}
	_, err := c.GeneratePrompt(context.Background(), "sys", "user")
	if !errors.Is(err, models.ErrUpstreamGeneration) {
		t.Fatalf("expected ErrUpstreamGeneration, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	c := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, chatModel: DefaultChatModel}
	_, err := c.GeneratePrompt(context.Background(), "sys", "user")
	if !errors.Is(err, models.ErrUpstreamGeneration) {
		t.Fatalf("expected ErrUpstreamGeneration for empty choices, got %v", err)
	}
}

func TestEmbedText_Success(t *testing.T) {
	mockResp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float64{0.1, 0.2, 0.3}}},
	}
	c := &Client{embeddings: &mockEmbeddingService{resp: mockResp}, embeddingModel: DefaultEmbeddingModel}
	vec, err := c.EmbedText(context.Background(), "sillones")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestEmbedTexts_BatchOrderedByIndex(t *testing.T) {
	mockResp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{
			{Index: 1, Embedding: []float64{0.2}},
			{Index: 0, Embedding: []float64{0.1}},
		},
	}
	c := &Client{embeddings: &mockEmbeddingService{resp: mockResp}, embeddingModel: DefaultEmbeddingModel}
	vecs, err := c.EmbedTexts(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][0] != 0.2 {
		t.Errorf("expected vectors in input order, got %v", vecs)
	}
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	mockResp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float64{0.1}}},
	}
	c := &Client{embeddings: &mockEmbeddingService{resp: mockResp}, embeddingModel: DefaultEmbeddingModel}
	if _, err := c.EmbedTexts(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for embedding count mismatch")
	}
}

func TestEmbedText_NoData(t *testing.T) {
	c := &Client{embeddings: &mockEmbeddingService{resp: &openai.CreateEmbeddingResponse{}}, embeddingModel: DefaultEmbeddingModel}
	if _, err := c.EmbedText(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty data, got nil")
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}
