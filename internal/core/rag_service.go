package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultTopK = 3

	contextInstruction = "Answer ONLY from the context below."
)

type RAGService struct {
	docs      *store.DocumentStore
	embedder  Embedder
	completer Completer
	topK      int
	logger    *zap.Logger
}

func NewRAGService(docs *store.DocumentStore, embedder Embedder, completer Completer, topK int, logger *zap.Logger) *RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RAGService{
		docs:      docs,
		embedder:  embedder,
		completer: completer,
		topK:      topK,
		logger:    logger,
	}
}

// Answer grounds the query in the collection when it has an index and falls
// back to a plain completion otherwise.
func (s *RAGService) Answer(ctx context.Context, collectionID, query string) (string, error) {
	indexed, err := s.docs.Exists(collectionID)
	if err != nil {
		return "", err
	}
	if !indexed {
		s.logger.Debug("No document index, answering without context", zap.String("collection", collectionID))
		return s.completer.Complete(ctx, query)
	}

	chunks, err := s.Retrieve(ctx, collectionID, query)
	if err != nil {
		return "", err
	}
	s.logger.Debug("Retrieved context", zap.String("collection", collectionID), zap.Int("chunks", len(chunks)))

	return s.completer.Complete(ctx, BuildPrompt(chunks, query))
}

// Retrieve returns the texts of the chunks nearest to the query, nearest first.
func (s *RAGService) Retrieve(ctx context.Context, collectionID, query string) ([]string, error) {
	collection, err := s.docs.Load(collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collectionID, err)
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	neighbors, err := collection.Index.Search(queryEmbedding, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	chunks := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		chunks = append(chunks, collection.Chunks[n.Position])
	}
	return chunks, nil
}

func BuildPrompt(chunks []string, query string) string {
	return fmt.Sprintf("\n%s\n\nContext:\n%s\n\nQuestion:\n%s\n",
		contextInstruction, strings.Join(chunks, "\n"), query)
}
