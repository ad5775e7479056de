package rag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bull/book-rag-server/internal/storage"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.EmbedQuery(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeCompleter struct {
	answer string
	err    error

	mu       sync.Mutex
	requests []CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeIndex answers every query with a fixed list of matches truncated to k.
type fakeIndex struct {
	matches []storage.Match
	err     error

	lastK int
}

func distances(ds ...float64) []storage.Match {
	out := make([]storage.Match, len(ds))
	for i, d := range ds {
		out[i] = storage.Match{
			ID:       string(rune('a' + i)),
			Document: "doc " + string(rune('A'+i)),
			Distance: d,
			Metadata: map[string]string{"source": "fundamentos_ia"},
		}
	}
	return out
}

func (f *fakeIndex) CreateCollection(context.Context, string, int) error { return nil }
func (f *fakeIndex) DropCollection(context.Context, string) error        { return nil }
func (f *fakeIndex) Upsert(context.Context, string, []storage.Record) error {
	return errors.New("read-only fake")
}

func (f *fakeIndex) Query(_ context.Context, _ string, _ []float32, k int) ([]storage.Match, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.matches[:min(k, len(f.matches))], nil
}

func (f *fakeIndex) Count(context.Context, string) (int, error) {
	return len(f.matches), nil
}

type observation struct {
	mode    Mode
	final   State
	chunks  int
	refused bool
	err     error
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveQuery(mode Mode, final State, chunks int, refused bool, err error, _ time.Duration) {
	o.seen = append(o.seen, observation{mode, final, chunks, refused, err})
}
