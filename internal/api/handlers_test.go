package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicproject/unic/internal/auth"
	"github.com/unicproject/unic/internal/core"
	"github.com/unicproject/unic/internal/embedding"
	"github.com/unicproject/unic/internal/store"
)

type apiFixture struct {
	server *httptest.Server
	index  *core.Index
	db     *store.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := store.NewMemoryStore()
	embedder := embedding.NewLocalEmbedder()
	idx, err := core.NewIndex(db, nil)
	require.NoError(t, err)

	sessions := auth.NewSessionManager(db, time.Hour, nil)
	credentials := auth.NewCredentialStore(db, 6, nil)
	processor := core.NewProcessor(embedder, idx, 10, nil)
	chat := core.NewChatService(sessions, processor, core.NewComposer(nil), idx, db, nil)

	h := NewHandler(chat, credentials, sessions, db, 5*time.Second, nil)
	server := httptest.NewServer(NewRouter(h))
	t.Cleanup(server.Close)
	return &apiFixture{server: server, index: idx, db: db}
}

func (f *apiFixture) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (f *apiFixture) registerAndLogin(t *testing.T) string {
	t.Helper()
	resp, _ := f.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := f.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["session_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (f *apiFixture) seedEntry(t *testing.T) {
	t.Helper()
	embedder := embedding.NewLocalEmbedder()
	content := "Knowledge and wisdom are the foundation of truth."
	vec, err := embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert(&store.KnowledgeEntry{
		Title:      "The Power of Knowledge",
		Content:    content,
		Category:   store.CategoryPhilosophy,
		Author:     "Socrates",
		Embedding:  vec,
		Processed:  true,
		Confidence: 1.0,
	}))
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestRegisterValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate registration conflicts.
	resp, _ = f.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Short password is rejected.
	resp, _ = f.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndLogin(t)

	resp, body := f.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	respUnknown, bodyUnknown := f.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, respUnknown.StatusCode)
	assert.Equal(t, body["error"], bodyUnknown["error"], "unknown user and wrong password are indistinguishable")
}

func TestMeAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	token := f.registerAndLogin(t)

	resp, body := f.request(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ := body["user"].(map[string]any)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user["username"])

	resp, _ = f.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The token is dead after logout.
	resp, _ = f.request(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out again is still a success.
	resp, _ = f.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatFlow(t *testing.T) {
	f := newAPIFixture(t)
	token := f.registerAndLogin(t)
	f.seedEntry(t)

	resp, body := f.request(t, http.MethodPost, "/api/chat", token, map[string]string{
		"message": "Tell me about wisdom and knowledge",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["response"])
	assert.Equal(t, store.CategoryPhilosophy, body["category"])
	assert.NotEmpty(t, body["session_id"])
	confidence, _ := body["confidence_score"].(float64)
	assert.Greater(t, confidence, 0.0)

	// The turn is retrievable from the conversation log.
	sessionID, _ := body["session_id"].(string)
	resp, history := f.request(t, http.MethodGet, "/api/conversations/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), history["total"])
}

func TestChatRejectsUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.request(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.request(t, http.MethodPost, "/api/chat", "forged-token", map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	f := newAPIFixture(t)
	token := f.registerAndLogin(t)

	resp, _ := f.request(t, http.MethodPost, "/api/chat", token, map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.registerAndLogin(t)
	f.seedEntry(t)

	resp, body := f.request(t, http.MethodPost, "/api/search", token, map[string]string{
		"query": "wisdom knowledge truth",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	total, _ := body["total_results"].(float64)
	assert.GreaterOrEqual(t, total, float64(1))

	resp, _ = f.request(t, http.MethodPost, "/api/search", token, map[string]string{
		"query": "wisdom", "category": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.request(t, http.MethodPost, "/api/search", token, map[string]string{"query": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.request(t, http.MethodPost, "/api/search", "", map[string]string{"query": "wisdom"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestKnowledgeListing(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEntry(t)

	// Knowledge listing is public.
	resp, body := f.request(t, http.MethodGet, "/api/knowledge", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = f.request(t, http.MethodGet, "/api/knowledge?category=arts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total"])

	resp, _ = f.request(t, http.MethodGet, "/api/knowledge?category=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatisticsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedEntry(t)

	resp, body := f.request(t, http.MethodGet, "/api/statistics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_knowledge_entries"])
}
