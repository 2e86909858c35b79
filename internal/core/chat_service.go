package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/auth"
	"github.com/unicproject/unic/internal/store"
)

var (
	// ErrEmptyMessage is returned when a chat turn has no message text.
	ErrEmptyMessage = errors.New("message is required")
	// ErrInvalidCategory is returned for a category outside the fixed set.
	ErrInvalidCategory = errors.New("invalid category")
)

// ChatResult is the structured outcome of one conversational turn.
type ChatResult struct {
	Response   string    `json:"response"`
	SessionID  string    `json:"session_id"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence_score"`
	Timestamp  time.Time `json:"timestamp"`
	SourceIDs  []int64   `json:"sources_used,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
}

// SearchResult is one ranked knowledge-base hit.
type SearchResult struct {
	EntryID    int64   `json:"entry_id"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity_score"`
}

// ChatService is the orchestrator: it validates the session, runs the query
// pipeline, composes the reply and appends the exchange to the conversation
// log.
type ChatService struct {
	sessions  *auth.SessionManager
	processor *Processor
	composer  *Composer
	index     *Index
	store     store.Store
	logger    *zap.Logger
}

func NewChatService(sessions *auth.SessionManager, processor *Processor, composer *Composer, index *Index, s store.Store, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessions:  sessions,
		processor: processor,
		composer:  composer,
		index:     index,
		store:     s,
		logger:    logger,
	}
}

// HandleQuery runs one conversational turn. A failed conversation append is
// logged and swallowed so the composed response still reaches the caller; an
// invalid token fails with auth.ErrUnauthorized before any work happens.
func (s *ChatService) HandleQuery(ctx context.Context, token, sessionID, message string) (*ChatResult, error) {
	user, err := s.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrUnauthorized
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	qc, err := s.processor.Process(ctx, message)
	if err != nil {
		return nil, err
	}
	response := s.composer.Compose(qc)

	sourceIDs := make([]int64, 0, len(qc.Results))
	for _, r := range qc.Results {
		sourceIDs = append(sourceIDs, r.Entry.ID)
	}

	result := &ChatResult{
		Response:   response,
		SessionID:  sessionID,
		Category:   qc.Category,
		Confidence: qc.Confidence,
		Timestamp:  time.Now().UTC(),
		SourceIDs:  sourceIDs,
		Sources:    s.SourceTitles(sourceIDs),
	}

	conv := &store.Conversation{
		SessionID:  sessionID,
		UserID:     &user.ID,
		Message:    message,
		Response:   response,
		Timestamp:  result.Timestamp,
		Category:   qc.Category,
		Confidence: qc.Confidence,
		SourceIDs:  sourceIDs,
	}
	if err := s.store.AppendConversation(conv); err != nil {
		// A logging failure must not fail the conversational turn.
		s.logger.Error("failed to append conversation", zap.String("session_id", sessionID), zap.Error(err))
	}

	return result, nil
}

// Search runs a ranked knowledge search for an authenticated caller.
func (s *ChatService) Search(ctx context.Context, token, query, category string, topK int) ([]SearchResult, error) {
	user, err := s.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrUnauthorized
	}
	if category != "" && !store.ValidCategory(category) {
		return nil, ErrInvalidCategory
	}

	scored, err := s.processor.SearchRaw(ctx, query, category, topK)
	if err != nil {
		s.logger.Warn("search degraded to empty results", zap.Error(err))
		return nil, nil
	}

	results := make([]SearchResult, 0, len(scored))
	for _, r := range scored {
		results = append(results, SearchResult{
			EntryID:    r.Entry.ID,
			Title:      r.Entry.Title,
			Snippet:    snippet(r.Entry.Content, 200),
			Category:   r.Entry.Category,
			Similarity: r.Score,
		})
	}
	return results, nil
}

// History returns the caller's conversation log for a session, newest first.
// Only conversations owned by the authenticated user are returned.
func (s *ChatService) History(token, sessionID string, limit int) ([]*store.Conversation, error) {
	user, err := s.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrUnauthorized
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ConversationHistory(sessionID, user.ID, limit)
}

// SourceTitles resolves knowledge-entry ids to titles. A dangling id (entry
// since pruned) resolves to "unknown source" instead of failing.
func (s *ChatService) SourceTitles(ids []int64) []string {
	if len(ids) == 0 {
		return nil
	}
	titles := make([]string, len(ids))
	for i, id := range ids {
		if entry := s.index.Get(id); entry != nil && entry.Title != "" {
			titles[i] = entry.Title
		} else {
			titles[i] = "unknown source"
		}
	}
	return titles
}

// Statistics reports store-wide totals.
func (s *ChatService) Statistics() (*store.Stats, error) {
	return s.store.Statistics()
}

func snippet(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
