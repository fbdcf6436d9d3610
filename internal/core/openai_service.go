package core

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIChatModel = "llama-3.1-8b-instant"

// OpenAIService serves any OpenAI-compatible endpoint (Groq, Ollama, OpenAI).
type OpenAIService struct {
	llm      *openai.LLM
	embedder *embeddings.EmbedderImpl
}

func NewOpenAIService(baseURL, token, chatModel, embeddingModel string) (*OpenAIService, error) {
	if chatModel == "" {
		chatModel = defaultOpenAIChatModel
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(chatModel),
	}
	if embeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	// Chunks are fixed-size slices; newlines inside them are kept as-is.
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OpenAIService{llm: llm, embedder: emb}, nil
}

func (s *OpenAIService) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	return completion, nil
}

func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return vec, nil
}

func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("batch embedding request failed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
