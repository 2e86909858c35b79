package core

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicproject/unic/internal/auth"
	"github.com/unicproject/unic/internal/store"
)

type chatFixture struct {
	svc      *ChatService
	creds    *auth.CredentialStore
	sessions *auth.SessionManager
	db       store.Store
	index    *Index
	embedder *fakeEmbedder
}

func newChatFixture(t *testing.T, db store.Store) *chatFixture {
	t.Helper()
	if db == nil {
		db = store.NewMemoryStore()
	}
	embedder := newFakeEmbedder("wisdom", "knowledge", "truth")
	idx, err := NewIndex(db, nil)
	require.NoError(t, err)

	sessions := auth.NewSessionManager(db, time.Hour, nil)
	processor := NewProcessor(embedder, idx, 10, nil)
	composer := NewComposer(rand.New(rand.NewSource(1)))
	return &chatFixture{
		svc:      NewChatService(sessions, processor, composer, idx, db, nil),
		creds:    auth.NewCredentialStore(db, 6, nil),
		sessions: sessions,
		db:       db,
		index:    idx,
		embedder: embedder,
	}
}

func (f *chatFixture) login(t *testing.T) string {
	t.Helper()
	_, err := f.creds.CreateUser("alice", "alice@x.com", "secret123")
	require.NoError(t, err)
	user, err := f.creds.Authenticate("alice", "secret123")
	require.NoError(t, err)
	require.NotNil(t, user)
	token, err := f.sessions.Create(user.ID, auth.SessionMetadata{})
	require.NoError(t, err)
	return token
}

func (f *chatFixture) seedEntry(t *testing.T) *store.KnowledgeEntry {
	t.Helper()
	entry := &store.KnowledgeEntry{
		Title:      "The Power of Knowledge",
		Content:    "Knowledge and wisdom are the foundation of truth.",
		Category:   store.CategoryPhilosophy,
		Author:     "Socrates",
		Embedding:  f.embedder.embedText("knowledge wisdom truth"),
		Processed:  true,
		Confidence: 1.0,
	}
	require.NoError(t, f.index.Upsert(entry))
	return entry
}

func TestHandleQueryFullTurn(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)
	entry := f.seedEntry(t)

	result, err := f.svc.HandleQuery(context.Background(), token, "", "Tell me about wisdom")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Response)
	assert.NotEmpty(t, result.SessionID, "a missing session id is generated")
	assert.Equal(t, store.CategoryPhilosophy, result.Category)
	assert.Greater(t, result.Confidence, 0.0)
	require.Contains(t, result.SourceIDs, entry.ID)
	assert.Contains(t, result.Sources, "The Power of Knowledge")

	// The turn is logged against the generated session.
	history, err := f.svc.History(token, result.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Tell me about wisdom", history[0].Message)
	assert.Equal(t, result.Response, history[0].Response)
	assert.Equal(t, result.Confidence, history[0].Confidence)
}

func TestHandleQueryKeepsCallerSessionID(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)

	first, err := f.svc.HandleQuery(context.Background(), token, "my-session", "hello")
	require.NoError(t, err)
	assert.Equal(t, "my-session", first.SessionID)

	second, err := f.svc.HandleQuery(context.Background(), token, "my-session", "thanks")
	require.NoError(t, err)
	assert.Equal(t, "my-session", second.SessionID)

	history, err := f.svc.History(token, "my-session", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleQueryGreeting(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)
	f.seedEntry(t)

	result, err := f.svc.HandleQuery(context.Background(), token, "s1", "hello")
	require.NoError(t, err)
	assert.Contains(t, greetingTemplates, result.Response)
	assert.Empty(t, result.SourceIDs)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Zero(t, f.embedder.calls, "greetings bypass the knowledge lookup")
}

func TestHandleQueryRejectsBadInput(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)

	_, err := f.svc.HandleQuery(context.Background(), "bad-token", "s1", "hello")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.svc.HandleQuery(context.Background(), token, "s1", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

// appendFailStore fails every conversation append.
type appendFailStore struct {
	*store.MemoryStore
}

func (s *appendFailStore) AppendConversation(*store.Conversation) error {
	return errors.New("disk full")
}

func TestHandleQuerySurvivesLogFailure(t *testing.T) {
	f := newChatFixture(t, &appendFailStore{store.NewMemoryStore()})
	token := f.login(t)
	f.seedEntry(t)

	result, err := f.svc.HandleQuery(context.Background(), token, "s1", "Tell me about wisdom")
	require.NoError(t, err, "a failed conversation append must not fail the turn")
	assert.NotEmpty(t, result.Response)
}

func TestSearch(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)
	entry := f.seedEntry(t)

	results, err := f.svc.Search(context.Background(), token, "wisdom truth", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.ID, results[0].EntryID)
	assert.Equal(t, "The Power of Knowledge", results[0].Title)
	assert.Greater(t, results[0].Similarity, 0.0)

	// A category filter that matches nothing yields no hits, not an error.
	results, err = f.svc.Search(context.Background(), token, "wisdom", store.CategoryArts, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.svc.Search(context.Background(), token, "wisdom", "nonsense", 10)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, err = f.svc.Search(context.Background(), "bad-token", "wisdom", "", 10)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSearchDegradesWhenEmbedderFails(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)
	f.seedEntry(t)
	f.embedder.err = errors.New("embedding service down")

	results, err := f.svc.Search(context.Background(), token, "wisdom", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHistoryIsScopedToUser(t *testing.T) {
	f := newChatFixture(t, nil)
	token := f.login(t)

	_, err := f.svc.HandleQuery(context.Background(), token, "shared", "hello")
	require.NoError(t, err)

	// A second user asking for the same session id sees nothing.
	_, err = f.creds.CreateUser("bob", "bob@x.com", "secret123")
	require.NoError(t, err)
	bob, err := f.creds.Authenticate("bob", "secret123")
	require.NoError(t, err)
	bobToken, err := f.sessions.Create(bob.ID, auth.SessionMetadata{})
	require.NoError(t, err)

	history, err := f.svc.History(bobToken, "shared", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.svc.History("bad-token", "shared", 0)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSourceTitlesResolvesDanglingIDs(t *testing.T) {
	f := newChatFixture(t, nil)
	entry := f.seedEntry(t)

	titles := f.svc.SourceTitles([]int64{entry.ID, 9999})
	assert.Equal(t, []string{"The Power of Knowledge", "unknown source"}, titles)

	assert.Nil(t, f.svc.SourceTitles(nil))
}
