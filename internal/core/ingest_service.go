package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfchat/pdfchat/internal/store"
	"go.uber.org/zap"
)

const DefaultChunkSize = 500

var ErrNoText = errors.New("document has no extractable text")

// IngestResult is the outcome of one ingestion. Err is set when Status is
// store.DocStatusError.
type IngestResult struct {
	Status  store.DocStatus
	DocName string
	Chunks  int
	Err     error
}

func (r IngestResult) OK() bool {
	return r.Status == store.DocStatusReady
}

type IngestService struct {
	extractor TextExtractor
	embedder  Embedder
	docs      *store.DocumentStore
	chunkSize int
	logger    *zap.Logger
}

func NewIngestService(extractor TextExtractor, embedder Embedder, docs *store.DocumentStore, chunkSize int, logger *zap.Logger) *IngestService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &IngestService{
		extractor: extractor,
		embedder:  embedder,
		docs:      docs,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Ingest replaces the collection with the contents of the document at path.
// On failure the previous collection is left as it was.
func (s *IngestService) Ingest(ctx context.Context, collectionID, path, docName string) IngestResult {
	n, err := s.ingest(ctx, collectionID, path)
	if err != nil {
		s.logger.Error("Ingestion failed",
			zap.String("collection", collectionID),
			zap.String("doc", docName),
			zap.Error(err))
		return IngestResult{Status: store.DocStatusError, DocName: docName, Err: err}
	}
	s.logger.Info("Ingested document",
		zap.String("collection", collectionID),
		zap.String("doc", docName),
		zap.Int("chunks", n))
	return IngestResult{Status: store.DocStatusReady, DocName: docName, Chunks: n}
}

func (s *IngestService) ingest(ctx context.Context, collectionID, path string) (int, error) {
	pages, err := s.extractor.ExtractPages(ctx, path)
	if err != nil {
		return 0, err
	}

	chunks := ChunkText(strings.Join(pages, ""), s.chunkSize)
	if len(chunks) == 0 {
		return 0, ErrNoText
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	index := store.NewFlatL2Index(len(vectors[0]))
	if err := index.Add(vectors...); err != nil {
		return 0, fmt.Errorf("failed to build index: %w", err)
	}

	if err := s.docs.Save(&store.Collection{ID: collectionID, Chunks: chunks, Index: index}); err != nil {
		return 0, fmt.Errorf("failed to persist collection: %w", err)
	}
	return len(chunks), nil
}

// ChunkText cuts text into consecutive size-character pieces. The last piece
// may be shorter. Characters are Unicode code points.
func ChunkText(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 || size <= 0 {
		return nil
	}

	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
