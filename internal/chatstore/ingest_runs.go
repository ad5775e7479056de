package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestRun records one completed ingestion of a corpus into a collection.
type IngestRun struct {
	ID           string        `json:"id"`
	Collection   string        `json:"collection"`
	Corpus       string        `json:"corpus"`
	Strategy     string        `json:"strategy"`
	Fragments    int           `json:"fragments"`
	DroppedWords int           `json:"dropped_words"`
	Dimension    int           `json:"dimension"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// RecordIngestRun stores run, assigning an ID when empty.
func (s *Store) RecordIngestRun(ctx context.Context, run IngestRun) (*IngestRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs
			(id, collection, corpus, strategy, fragments, dropped_words, dimension, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Collection, run.Corpus, run.Strategy, run.Fragments, run.DroppedWords,
		run.Dimension, toUnix(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("inserting ingest run: %w", err)
	}
	return &run, nil
}

// LastIngestRun returns the most recent run for collection.
func (s *Store) LastIngestRun(ctx context.Context, collection string) (*IngestRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, corpus, strategy, fragments, dropped_words, dimension, started_at, duration_ms
		FROM ingest_runs
		WHERE collection = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, collection)

	var (
		run        IngestRun
		started    int64
		durationMS int64
	)
	err := row.Scan(&run.ID, &run.Collection, &run.Corpus, &run.Strategy, &run.Fragments,
		&run.DroppedWords, &run.Dimension, &started, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ingest run: %w", err)
	}
	run.StartedAt = fromUnix(started)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
