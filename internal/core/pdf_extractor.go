package core

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// TextExtractor returns the text of each page of a document. Pages without
// extractable text are left out.
type TextExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) (pages []string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("failed to parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok := pageText(r.Page(i))
		if !ok {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pageText reports false for pages with no content stream or no text a
// plain-text pass can recover.
func pageText(p pdf.Page) (string, bool) {
	if p.V.IsNull() || p.V.Key("Contents").IsNull() {
		return "", false
	}
	text, err := p.GetPlainText(nil)
	if err != nil || text == "" {
		return "", false
	}
	return text, true
}
