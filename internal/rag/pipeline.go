// Package rag answers questions about an indexed book.
//
// A query runs as a small state machine:
//
//	Idle -> Retrieving -> RawReturn  -> Done   (retrieval_only)
//	Idle -> Retrieving -> Generating -> Done   (full)
//
// Any failing step moves the run to Failed and returns the error. Runs
// share no state, so a Pipeline is safe for concurrent use.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Mode selects how far a query runs.
type Mode string

const (
	ModeRetrievalOnly Mode = "retrieval_only"
	ModeFull          Mode = "full"
)

// ParseMode maps a mode name to a Mode. "raw" is accepted for
// retrieval_only. An empty string yields an empty Mode, meaning the
// configured default.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(ModeRetrievalOnly), "raw":
		return ModeRetrievalOnly, nil
	case string(ModeFull):
		return ModeFull, nil
	}
	return "", wrap(ErrConfiguration, fmt.Errorf("unknown mode %q", s))
}

// State is a step of a query run.
type State string

const (
	StateIdle       State = "idle"
	StateRetrieving State = "retrieving"
	StateRawReturn  State = "raw_return"
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Defaults fill the parameters a request leaves unset.
type Defaults struct {
	Mode              Mode
	NResults          int
	DistanceThreshold float64
}

// QueryRequest is one question. Nil or empty fields take the pipeline defaults.
type QueryRequest struct {
	Query             string
	Mode              Mode
	NResults          *int
	DistanceThreshold *float64
}

// QueryResult is the outcome of a successful run.
type QueryResult struct {
	Query   string   `json:"query"`
	Mode    Mode     `json:"mode"`
	Chunks  []Result `json:"chunks"`
	Answer  string   `json:"answer,omitempty"`
	Refused bool     `json:"refused"`

	// States visited, starting at StateIdle.
	States []State `json:"-"`
}

// Observer receives the outcome of every run.
type Observer interface {
	ObserveQuery(mode Mode, final State, chunks int, refused bool, err error, elapsed time.Duration)
}

// Pipeline wires retrieval and generation together.
type Pipeline struct {
	retriever *Retriever
	generator *AnswerGenerator
	defaults  Defaults
	logger    *zap.Logger
	observer  Observer
}

// NewPipeline validates defaults and returns a pipeline. logger and
// observer may be nil.
func NewPipeline(retriever *Retriever, generator *AnswerGenerator, defaults Defaults, logger *zap.Logger, observer Observer) (*Pipeline, error) {
	if defaults.Mode == "" {
		defaults.Mode = ModeFull
	}
	if _, err := ParseMode(string(defaults.Mode)); err != nil {
		return nil, err
	}
	if err := validateRetrieval(defaults.NResults, defaults.DistanceThreshold); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		defaults:  defaults,
		logger:    logger,
		observer:  observer,
	}, nil
}

// Defaults returns the configured defaults.
func (p *Pipeline) Defaults() Defaults {
	return p.defaults
}

// Run executes one query.
func (p *Pipeline) Run(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()
	run := &queryRun{states: []State{StateIdle}}

	mode, n, threshold, err := p.resolve(req)
	if err != nil {
		return nil, p.fail(run, mode, err, start)
	}

	run.enter(StateRetrieving)
	chunks, err := p.retriever.Retrieve(ctx, req.Query, n, threshold)
	if err != nil {
		return nil, p.fail(run, mode, err, start)
	}

	result := &QueryResult{Query: req.Query, Mode: mode, Chunks: chunks}

	if mode == ModeRetrievalOnly {
		run.enter(StateRawReturn)
	} else {
		run.enter(StateGenerating)
		answer, err := p.generator.Answer(ctx, req.Query, chunks)
		if err != nil {
			return nil, p.fail(run, mode, err, start)
		}
		result.Answer = answer
		result.Refused = IsRefusal(answer)
	}

	run.enter(StateDone)
	result.States = run.states

	elapsed := time.Since(start)
	p.logger.Debug("query complete",
		zap.String("mode", string(mode)),
		zap.Int("n_results", n),
		zap.Float64("distance_threshold", threshold),
		zap.Int("chunks", len(chunks)),
		zap.Bool("refused", result.Refused),
		zap.Duration("elapsed", elapsed),
	)
	if p.observer != nil {
		p.observer.ObserveQuery(mode, StateDone, len(chunks), result.Refused, nil, elapsed)
	}
	return result, nil
}

func (p *Pipeline) resolve(req QueryRequest) (Mode, int, float64, error) {
	mode := p.defaults.Mode
	if req.Mode != "" {
		parsed, err := ParseMode(string(req.Mode))
		if err != nil {
			return mode, 0, 0, err
		}
		mode = parsed
	}

	n := p.defaults.NResults
	if req.NResults != nil {
		n = *req.NResults
	}
	threshold := p.defaults.DistanceThreshold
	if req.DistanceThreshold != nil {
		threshold = *req.DistanceThreshold
	}

	return mode, n, threshold, validateRetrieval(n, threshold)
}

func (p *Pipeline) fail(run *queryRun, mode Mode, err error, start time.Time) error {
	from := run.current()
	run.enter(StateFailed)
	elapsed := time.Since(start)

	p.logger.Warn("query failed",
		zap.String("mode", string(mode)),
		zap.String("state", string(from)),
		zap.String("kind", ErrorKind(err)),
		zap.Error(err),
	)
	if p.observer != nil {
		p.observer.ObserveQuery(mode, StateFailed, 0, false, err, elapsed)
	}
	return err
}

type queryRun struct {
	states []State
}

func (r *queryRun) enter(s State) {
	r.states = append(r.states, s)
}

func (r *queryRun) current() State {
	return r.states[len(r.states)-1]
}
