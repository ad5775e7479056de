// Package chunking splits book text into the fragments that get embedded.
//
// Two strategies exist. Paragraph chunking keeps each paragraph of at
// least MinParagraphWords words. Window chunking slides a fixed-size word
// window across the normalized text.
package chunking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bull/book-rag-server/internal/normalize"
)

// MinParagraphWords is the floor under which a paragraph is treated as a
// caption or header and discarded.
const MinParagraphWords = 10

const paragraphBreak = "\n\n"

// Strategy selects how text is split.
type Strategy string

const (
	StrategyParagraph Strategy = "paragraph"
	StrategyWindow    Strategy = "window"
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyParagraph:
		return StrategyParagraph, nil
	case StrategyWindow, "":
		return StrategyWindow, nil
	}
	return "", fmt.Errorf("unknown chunking strategy %q", s)
}

// Chunk is one fragment of the document, ready for embedding.
type Chunk struct {
	Index    int
	Text     string
	Strategy Strategy

	// Word offsets into the normalized text. Set for window chunks only.
	WordStart int
	WordEnd   int
}

// Metadata returns the positional metadata stored alongside the chunk.
func (c Chunk) Metadata() map[string]string {
	m := map[string]string{
		"chunk_index": strconv.Itoa(c.Index),
		"strategy":    string(c.Strategy),
	}
	if c.Strategy == StrategyWindow {
		m["word_start"] = strconv.Itoa(c.WordStart)
		m["word_end"] = strconv.Itoa(c.WordEnd)
	}
	return m
}

// Result is the output of chunking one document.
type Result struct {
	Chunks []Chunk

	// Trailing words no window covers. Always zero for paragraph chunking.
	DroppedWords int
}

// Chunker normalizes raw extracted text and splits it with one strategy.
type Chunker struct {
	strategy Strategy
	window   Window
}

// NewChunker returns a chunker for strategy. window is ignored by the
// paragraph strategy but still validated.
func NewChunker(strategy Strategy, window Window) (*Chunker, error) {
	if strategy != StrategyParagraph && strategy != StrategyWindow {
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{strategy: strategy, window: window}, nil
}

// Strategy returns the configured strategy.
func (c *Chunker) Strategy() Strategy {
	return c.strategy
}

// ChunkDocument normalizes raw and splits it.
//
// Normalization collapses newlines, so the paragraph strategy takes its
// boundaries from raw first and normalizes each paragraph on its own. The
// paragraph is framed by the newlines the split consumed, so a heading on
// its first or last line is removed as it would be in window mode.
func (c *Chunker) ChunkDocument(raw string) Result {
	if c.strategy == StrategyParagraph {
		var chunks []Chunk
		for _, p := range strings.Split(raw, paragraphBreak) {
			text := normalize.Normalize("\n" + p + "\n")
			if wordCount(text) < MinParagraphWords {
				continue
			}
			chunks = append(chunks, Chunk{Index: len(chunks), Text: text, Strategy: StrategyParagraph})
		}
		return Result{Chunks: chunks}
	}

	words := strings.Fields(normalize.Normalize(raw))
	spans := c.window.spans(words)
	chunks := make([]Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = Chunk{
			Index:     i,
			Text:      s.Text,
			Strategy:  StrategyWindow,
			WordStart: s.Start,
			WordEnd:   s.End,
		}
	}
	return Result{Chunks: chunks, DroppedWords: droppedTail(len(words), spans)}
}

// Paragraphs splits text on blank-line separators and keeps the trimmed
// segments of at least MinParagraphWords words.
func Paragraphs(text string) []string {
	var out []string
	for _, segment := range strings.Split(text, paragraphBreak) {
		segment = strings.TrimSpace(segment)
		if wordCount(segment) >= MinParagraphWords {
			out = append(out, segment)
		}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
