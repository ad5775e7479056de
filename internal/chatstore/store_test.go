package chatstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a store in a temp dir with a clock that advances
// one millisecond per call, so orderings are deterministic.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "data", "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return store
}

func createTestUser(t *testing.T, s *Store, email string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "lector", email)
	require.NoError(t, err)
	return u
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 2, versions)
	assert.Equal(t, path, s.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	u := createTestUser(t, s, "ana@example.com")
	assert.NotEmpty(t, u.ID)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	byEmail, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.CreateUser(ctx, "otra", "ana@example.com")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nadie@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	u := createTestUser(t, s, "ana@example.com")

	first, err := s.CreateConversation(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, first.Title)

	second, err := s.CreateConversation(ctx, u.ID, "Redes neuronales")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	// A new message moves the older conversation to the top.
	_, err = s.AddMessage(ctx, first.ID, RoleUser, "¿Qué es un perceptrón?")
	require.NoError(t, err)

	list, err = s.ListConversations(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
	assert.True(t, list[0].UpdatedAt.After(list[0].CreatedAt))

	_, err = s.CreateConversation(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ListConversations(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_EmptyIsNotNil(t *testing.T) {
	s := setupTestStore(t)
	u := createTestUser(t, s, "ana@example.com")

	list, err := s.ListConversations(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	u := createTestUser(t, s, "ana@example.com")
	c, err := s.CreateConversation(ctx, u.ID, "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, c.ID, RoleUser, "pregunta")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, RoleAssistant, "respuesta")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "pregunta", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	_, err = s.AddMessage(ctx, c.ID, Role("system"), "x")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = s.AddMessage(ctx, "missing", RoleUser, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ListMessages(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	u := createTestUser(t, s, "ana@example.com")
	c, err := s.CreateConversation(ctx, u.ID, "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, RoleUser, "hola")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, c.ID))

	var orphans int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", c.ID).Scan(&orphans))
	assert.Zero(t, orphans)

	assert.ErrorIs(t, s.DeleteConversation(ctx, c.ID), ErrNotFound)
}

func TestIngestRuns(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.LastIngestRun(ctx, "fundamentos_ia")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.RecordIngestRun(ctx, IngestRun{Collection: "fundamentos_ia", Corpus: "fundamentos_ia", Strategy: "paragraph", Fragments: 10})
	require.NoError(t, err)
	latest, err := s.RecordIngestRun(ctx, IngestRun{
		Collection:   "fundamentos_ia",
		Corpus:       "fundamentos_ia",
		Strategy:     "window",
		Fragments:    412,
		DroppedWords: 37,
		Dimension:    3072,
		Duration:     1500 * time.Millisecond,
	})
	require.NoError(t, err)

	got, err := s.LastIngestRun(ctx, "fundamentos_ia")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, "window", got.Strategy)
	assert.Equal(t, 412, got.Fragments)
	assert.Equal(t, 37, got.DroppedWords)
	assert.Equal(t, 3072, got.Dimension)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.True(t, got.StartedAt.Equal(latest.StartedAt))
}
