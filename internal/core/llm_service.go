package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	// Gemini rejects batch embedding requests above this size.
	maxEmbeddingBatch = 100
)

var ErrEmptyCompletion = errors.New("model returned no text")

// Completer turns a single user prompt into a model answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService talks to Gemini for both completions and embeddings.
type LLMService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	logger         *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, chatModel, embeddingModel string, logger *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModelName
	}

	return &LLMService{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		logger:         logger,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("Error closing GenAI client", zap.Error(err))
		} else {
			s.logger.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("empty embedding for text %d", start+i)
			}
			vectors = append(vectors, e.Values)
		}
		s.logger.Debug("Embedded batch", zap.Int("from", start), zap.Int("to", end))
	}
	return vectors, nil
}

func (s *LLMService) Complete(ctx context.Context, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.chatModel)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}

	text, err := completionText(resp)
	if err != nil {
		s.logger.Warn("Gemini response was empty or had no text parts", zap.String("model", s.chatModel))
		return "", err
	}
	return text, nil
}

func completionText(resp *genai.GenerateContentResponse) (string, error) {
	text, ok := responseText(resp)
	if !ok {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
