package core

import (
	"context"
	"errors"
	"sync"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if f.answer == "" {
		return "answer", nil
	}
	return f.answer, nil
}

func (f *fakeCompleter) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakeEmbedder returns the vector registered for a text, or a vector derived
// from the text's first byte.
type fakeEmbedder struct {
	vectors  map[string][]float32
	err      error
	batchErr error
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	if text == "" {
		return []float32{0, 0}, nil
	}
	return []float32{float32(text[0]), float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeExtractor struct {
	pages []string
	err   error
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

var errBoom = errors.New("boom")
