package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bull/book-rag-server/internal/storage"
)

func TestRetrieve_ThresholdFilter(t *testing.T) {
	index := &fakeIndex{matches: distances(0.1, 0.25, 0.4, 0.5, 0.6)}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1, 0}}, index, "fundamentos_ia")

	results, err := r.Retrieve(context.Background(), "¿Qué es un agente?", 5, 0.3)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 0.1, results[0].Distance)
	assert.Equal(t, 0.25, results[1].Distance)
	assert.Equal(t, "doc A", results[0].Document)
	assert.Equal(t, "fundamentos_ia", results[0].Metadata["source"])
	assert.Equal(t, 5, index.lastK)
}

func TestRetrieve_ThresholdIsInclusive(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(0.3, 0.30001)}, "c")

	results, err := r.Retrieve(context.Background(), "q", 8, 0.3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieve_PropertyHolds(t *testing.T) {
	ds := []float64{0, 0.05, 0.2, 0.2, 0.33, 0.7, 0.71, 0.9, 1.2, 1.9}
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(ds...)}, "c")

	for _, threshold := range []float64{0, 0.1, 0.2, 0.5, 0.7, 1, 2} {
		for n := 1; n <= len(ds)+2; n++ {
			results, err := r.Retrieve(context.Background(), "q", n, threshold)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), n)
			for i, res := range results {
				assert.LessOrEqual(t, res.Distance, threshold)
				if i > 0 {
					assert.LessOrEqual(t, results[i-1].Distance, res.Distance)
				}
			}
		}
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, "c")

	results, err := r.Retrieve(context.Background(), "q", 8, 0.7)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")

	t.Run("embedding failure", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{err: cause}, &fakeIndex{}, "c")
		_, err := r.Retrieve(ctx, "q", 8, 0.7)
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("empty vector", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{vector: []float32{}}, &fakeIndex{}, "c")
		_, err := r.Retrieve(ctx, "q", 8, 0.7)
		assert.ErrorIs(t, err, ErrEmbedding)
	})

	t.Run("blank query", func(t *testing.T) {
		embedder := &fakeEmbedder{vector: []float32{1}}
		r := NewRetriever(embedder, &fakeIndex{}, "c")
		_, err := r.Retrieve(ctx, "   ", 8, 0.7)
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.Zero(t, embedder.calls)
	})

	t.Run("index failure", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{vector: []float32{1}}, &fakeIndex{err: storage.ErrCollectionNotFound}, "c")
		_, err := r.Retrieve(ctx, "q", 8, 0.7)
		assert.ErrorIs(t, err, ErrIndex)
		assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	})

	t.Run("bad parameters", func(t *testing.T) {
		embedder := &fakeEmbedder{vector: []float32{1}}
		r := NewRetriever(embedder, &fakeIndex{}, "c")

		_, err := r.Retrieve(ctx, "q", 0, 0.7)
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = r.Retrieve(ctx, "q", 8, -0.1)
		assert.ErrorIs(t, err, ErrConfiguration)
		_, err = r.Retrieve(ctx, "q", 8, math.NaN())
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Zero(t, embedder.calls)
	})
}

func TestAnswer_EmptyEvidenceRefuses(t *testing.T) {
	completer := &fakeCompleter{answer: "algo inventado"}
	g := NewAnswerGenerator(completer, GenerationConfig{MaxTokens: 350, Temperature: 0.4})

	for _, results := range [][]Result{nil, {}} {
		answer, err := g.Answer(context.Background(), "¿Quién ganó el mundial?", results)
		require.NoError(t, err)
		assert.Equal(t, RefusalMessage, answer)
	}
	assert.Empty(t, completer.requests)
}

func TestAnswer_BuildsGroundedPrompt(t *testing.T) {
	completer := &fakeCompleter{answer: "Según el libro: un agente percibe y actúa."}
	g := NewAnswerGenerator(completer, GenerationConfig{MaxTokens: 350, Temperature: 0.4})

	results := []Result{
		{Document: "Un agente percibe su entorno.", Distance: 0.1},
		{Document: "Un agente actúa sobre su entorno.", Distance: 0.2},
	}
	answer, err := g.Answer(context.Background(), "¿Qué es un agente?", results)
	require.NoError(t, err)
	assert.Equal(t, "Según el libro: un agente percibe y actúa.", answer)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	assert.Equal(t, SystemPrompt, req.System)
	assert.Equal(t, 350, req.MaxTokens)
	assert.Equal(t, 0.4, req.Temperature)
	assert.Contains(t, req.User, "Pregunta:\n¿Qué es un agente?\n")
	assert.Contains(t, req.User, "Contexto:\n[1] Un agente percibe su entorno.\n\n[2] Un agente actúa sobre su entorno.")
}

func TestAnswer_GenerationFailure(t *testing.T) {
	cause := errors.New("503 service unavailable")
	g := NewAnswerGenerator(&fakeCompleter{err: cause}, GenerationConfig{MaxTokens: 10})

	_, err := g.Answer(context.Background(), "q", []Result{{Document: "d"}})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)
}

func TestUserPrompt_NoContext(t *testing.T) {
	prompt := UserPrompt("¿Qué es la IA?", nil)
	assert.NotContains(t, prompt, "Contexto:")
	assert.Equal(t, "\nResponde la siguiente pregunta basándote SOLO en el contexto recuperado.\n\nPregunta:\n¿Qué es la IA?\n\n\n", prompt)
}

func TestSystemPrompt_ContainsRefusal(t *testing.T) {
	assert.Contains(t, SystemPrompt, RefusalMessage)
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal(RefusalMessage))
	assert.True(t, IsRefusal("\n"+RefusalMessage+"  "))
	assert.False(t, IsRefusal(RefusalMessage+" Pero puedo decirte que..."))
	assert.False(t, IsRefusal(strings.ToUpper(RefusalMessage)))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "embedding", ErrorKind(wrap(ErrEmbedding, errors.New("x"))))
	assert.Equal(t, "generation", ErrorKind(wrap(ErrGeneration, errors.New("x"))))
	assert.Equal(t, "index", ErrorKind(wrap(ErrIndex, errors.New("x"))))
	assert.Equal(t, "configuration", ErrorKind(wrap(ErrConfiguration, errors.New("x"))))
	assert.Equal(t, "unknown", ErrorKind(errors.New("x")))
}

func newTestPipeline(t *testing.T, embedder Embedder, index VectorIndex, completer Completer, observer Observer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(
		NewRetriever(embedder, index, "fundamentos_ia"),
		NewAnswerGenerator(completer, GenerationConfig{MaxTokens: 350, Temperature: 0.4}),
		Defaults{Mode: ModeFull, NResults: 8, DistanceThreshold: 0.7},
		zaptest.NewLogger(t),
		observer,
	)
	require.NoError(t, err)
	return p
}

func TestPipeline_FullMode(t *testing.T) {
	index := &fakeIndex{matches: distances(0.1, 0.2, 0.9)}
	completer := &fakeCompleter{answer: "respuesta"}
	observer := &recordingObserver{}
	p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, index, completer, observer)

	result, err := p.Run(context.Background(), QueryRequest{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, ModeFull, result.Mode)
	assert.Equal(t, "respuesta", result.Answer)
	assert.False(t, result.Refused)
	assert.Len(t, result.Chunks, 2)
	assert.Equal(t, 8, index.lastK)
	assert.Equal(t, []State{StateIdle, StateRetrieving, StateGenerating, StateDone}, result.States)

	require.Len(t, observer.seen, 1)
	assert.Equal(t, StateDone, observer.seen[0].final)
	assert.Equal(t, 2, observer.seen[0].chunks)
}

func TestPipeline_RetrievalOnly(t *testing.T) {
	completer := &fakeCompleter{answer: "no debería llamarse"}
	p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(0.1, 0.5)}, completer, nil)

	n := 1
	for _, mode := range []Mode{ModeRetrievalOnly, "raw"} {
		result, err := p.Run(context.Background(), QueryRequest{Query: "q", Mode: mode, NResults: &n})
		require.NoError(t, err)

		assert.Equal(t, ModeRetrievalOnly, result.Mode)
		assert.Empty(t, result.Answer)
		assert.Len(t, result.Chunks, 1)
		assert.Equal(t, []State{StateIdle, StateRetrieving, StateRawReturn, StateDone}, result.States)
	}
	assert.Empty(t, completer.requests)
}

func TestPipeline_NoEvidenceRefuses(t *testing.T) {
	observer := &recordingObserver{}
	p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(0.8, 0.9)}, &fakeCompleter{}, observer)

	result, err := p.Run(context.Background(), QueryRequest{Query: "¿Receta de paella?"})
	require.NoError(t, err)

	assert.Equal(t, RefusalMessage, result.Answer)
	assert.True(t, result.Refused)
	assert.Empty(t, result.Chunks)
	assert.True(t, observer.seen[0].refused)
}

func TestPipeline_OverridesThreshold(t *testing.T) {
	p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(0.1, 0.25, 0.4, 0.5, 0.6)}, &fakeCompleter{answer: "ok"}, nil)

	n, threshold := 5, 0.3
	result, err := p.Run(context.Background(), QueryRequest{
		Query:             "q",
		Mode:              ModeRetrievalOnly,
		NResults:          &n,
		DistanceThreshold: &threshold,
	})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
}

func TestPipeline_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding", func(t *testing.T) {
		observer := &recordingObserver{}
		p := newTestPipeline(t, &fakeEmbedder{err: errors.New("401")}, &fakeIndex{}, &fakeCompleter{}, observer)

		result, err := p.Run(ctx, QueryRequest{Query: "q"})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrEmbedding)
		require.Len(t, observer.seen, 1)
		assert.Equal(t, StateFailed, observer.seen[0].final)
	})

	t.Run("generation", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{matches: distances(0.1)}, &fakeCompleter{err: errors.New("timeout")}, nil)

		_, err := p.Run(ctx, QueryRequest{Query: "q"})
		assert.ErrorIs(t, err, ErrGeneration)
	})

	t.Run("bad mode", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, &fakeCompleter{}, nil)

		_, err := p.Run(ctx, QueryRequest{Query: "q", Mode: "summary"})
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("bad count", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEmbedder{vector: []float32{1}}, &fakeIndex{}, &fakeCompleter{}, nil)

		zero := 0
		_, err := p.Run(ctx, QueryRequest{Query: "q", NResults: &zero})
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestNewPipeline_InvalidDefaults(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeIndex{}, "c")
	g := NewAnswerGenerator(&fakeCompleter{}, GenerationConfig{})

	_, err := NewPipeline(r, g, Defaults{NResults: 0, DistanceThreshold: 0.7}, nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewPipeline(r, g, Defaults{Mode: "other", NResults: 8, DistanceThreshold: 0.7}, nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	p, err := NewPipeline(r, g, Defaults{NResults: 8, DistanceThreshold: 0.7}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, p.Defaults().Mode)
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{"": "", "full": ModeFull, "FULL": ModeFull, "raw": ModeRetrievalOnly, "retrieval_only": ModeRetrievalOnly}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("answer")
	assert.ErrorIs(t, err, ErrConfiguration)
}
