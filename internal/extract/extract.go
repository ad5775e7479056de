// Package extract reads a corpus file into raw text for chunking.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor picks a reader by file extension: PDF, Markdown or plain text.
type Extractor struct {
	pdf      *PDFExtractor
	markdown *MarkdownExtractor
}

// New returns an extractor that reads PDFs with pdf.
func New(pdf *PDFExtractor) *Extractor {
	return &Extractor{pdf: pdf, markdown: NewMarkdownExtractor()}
}

// Extract returns the raw text of the file at path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.pdf.Extract(ctx, path)
	case ".md", ".markdown":
		source, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return e.markdown.Text(source), nil
	case ".txt", "":
		source, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(source), nil
	}
	return "", fmt.Errorf("unsupported corpus file type %q", filepath.Ext(path))
}
