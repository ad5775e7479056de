package chunking

import (
	"fmt"
	"strings"
)

// Window splits text into fixed-size runs of words that overlap by
// Overlap words. An Overlap at or above Words is legal and degrades the
// step to a single word.
type Window struct {
	Words   int
	Overlap int
}

// Span is one kept window: words [Start, End) of the input.
type Span struct {
	Start int
	End   int
	Text  string
}

// Validate reports a window that cannot produce chunks.
func (w Window) Validate() error {
	if w.Words < 1 {
		return fmt.Errorf("window size must be at least 1 word, got %d", w.Words)
	}
	if w.Overlap < 0 {
		return fmt.Errorf("window overlap must not be negative, got %d", w.Overlap)
	}
	return nil
}

// Step is the distance between consecutive window starts.
func (w Window) Step() int {
	return max(1, w.Words-w.Overlap)
}

// MinWords is the shortest window that is kept: 40% of Words, rounded up.
func (w Window) MinWords() int {
	return (2*w.Words + 4) / 5
}

// Chunk returns the text of every kept window in order.
func (w Window) Chunk(text string) []string {
	spans := w.Spans(text)
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = s.Text
	}
	return chunks
}

// Spans returns every kept window with its word offsets.
func (w Window) Spans(text string) []Span {
	return w.spans(strings.Fields(text))
}

func (w Window) spans(words []string) []Span {
	n := len(words)
	if n == 0 || w.Words < 1 {
		return nil
	}

	step := w.Step()
	minWords := w.MinWords()

	var spans []Span
	for start := 0; start < max(1, n-1); start += step {
		end := min(start+w.Words, n)
		if end-start >= minWords {
			spans = append(spans, Span{
				Start: start,
				End:   end,
				Text:  strings.Join(words[start:end], " "),
			})
		}
		if start+w.Words >= n {
			break
		}
	}
	return spans
}

// uncovered reports how many trailing words of text no kept window covers.
func (w Window) uncovered(text string) int {
	words := strings.Fields(text)
	return droppedTail(len(words), w.spans(words))
}

func droppedTail(n int, spans []Span) int {
	covered := 0
	for _, s := range spans {
		covered = max(covered, s.End)
	}
	return n - covered
}
