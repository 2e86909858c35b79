package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/auth"
	"github.com/unicproject/unic/internal/core"
	"github.com/unicproject/unic/internal/store"
)

type Handler struct {
	chat          *core.ChatService
	credentials   *auth.CredentialStore
	sessions      *auth.SessionManager
	store         store.Store
	searchTimeout time.Duration
	logger        *zap.Logger
}

func NewHandler(chat *core.ChatService, credentials *auth.CredentialStore, sessions *auth.SessionManager, s store.Store, searchTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if searchTimeout <= 0 {
		searchTimeout = 5 * time.Second
	}
	return &Handler{
		chat:          chat,
		credentials:   credentials,
		sessions:      sessions,
		store:         s,
		searchTimeout: searchTimeout,
		logger:        logger,
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// userSummary is the safe subset of a user returned by the API.
type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

func summarize(u *store.User) userSummary {
	return userSummary{ID: u.ID, Username: u.Username, Email: u.Email, IsAdmin: u.IsAdmin}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.credentials.CreateUser(req.Username, req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"user_id": user.ID})
	case errors.Is(err, store.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "username or email already exists")
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.credentials.Authenticate(req.Username, req.Password)
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil {
		// Same message for unknown username and wrong password.
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	token, err := h.sessions.Create(user.ID, auth.SessionMetadata{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("session creation failed", zap.Int64("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_token": token,
		"user":          summarize(user),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	// Idempotent: a second logout with the same token is a no-op success.
	if _, err := h.sessions.Invalidate(bearerToken(r)); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Validate(bearerToken(r))
	if err != nil {
		h.logger.Error("session validation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to validate session")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": summarize(user)})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The search step runs under a fixed budget; exceeding it degrades to a
	// "no results" reply rather than failing the turn.
	ctx, cancel := context.WithTimeout(r.Context(), h.searchTimeout)
	defer cancel()

	result, err := h.chat.HandleQuery(ctx, bearerToken(r), req.SessionID, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, core.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
	default:
		h.logger.Error("chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.searchTimeout)
	defer cancel()

	results, err := h.chat.Search(ctx, bearerToken(r), req.Query, req.Category, 0)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"query":         req.Query,
			"results":       results,
			"total_results": len(results),
		})
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, core.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, "invalid category")
	default:
		h.logger.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	convs, err := h.chat.History(bearerToken(r), sessionID, limit)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":    sessionID,
			"conversations": convs,
			"total":         len(convs),
		})
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.logger.Error("history lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) Knowledge(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	category := r.URL.Query().Get("category")
	if category != "" && !store.ValidCategory(category) {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	entries, err := h.store.ListKnowledge(store.KnowledgeFilter{
		Category:   category,
		SourceType: r.URL.Query().Get("source_type"),
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("knowledge listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type knowledgeSummary struct {
		ID         int64     `json:"id"`
		Title      string    `json:"title"`
		Content    string    `json:"content"`
		Category   string    `json:"category"`
		Author     string    `json:"author"`
		Source     string    `json:"source"`
		DateAdded  time.Time `json:"date_added"`
		Confidence float64   `json:"confidence_score"`
	}
	summaries := make([]knowledgeSummary, 0, len(entries))
	for _, entry := range entries {
		content := entry.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		summaries = append(summaries, knowledgeSummary{
			ID:         entry.ID,
			Title:      entry.Title,
			Content:    content,
			Category:   entry.Category,
			Author:     entry.Author,
			Source:     entry.Source,
			DateAdded:  entry.CreatedAt,
			Confidence: entry.Confidence,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": summaries,
		"total":   len(summaries),
	})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.chat.Statistics()
	if err != nil {
		h.logger.Error("statistics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "UnIC API",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
