package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used for tests and for running without a
// database file. Safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[int64]*User
	sessions      map[string]*Session
	knowledge     map[int64]*KnowledgeEntry
	conversations []*Conversation
	nextUserID    int64
	nextEntryID   int64
	nextConvID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*User),
		sessions:  make(map[string]*Session),
		knowledge: make(map[int64]*KnowledgeEntry),
	}
}

// User methods

func (s *MemoryStore) CreateUser(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return ErrDuplicateUser
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByUsername(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUserByID(id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) UpdateLastLogin(userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[userID]; ok {
		t := at
		user.LastLoginAt = &t
	}
	return nil
}

func (s *MemoryStore) DeactivateUser(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[userID]; ok {
		user.IsActive = false
	}
	return nil
}

// Session methods

func (s *MemoryStore) CreateSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.Token] = &cp
	return nil
}

func (s *MemoryStore) GetSession(token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[token]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeactivateSession(token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	return true, nil
}

func (s *MemoryStore) DeactivateUserSessions(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsActive = false
		}
	}
	return nil
}

func (s *MemoryStore) PurgeSessions(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for token, sess := range s.sessions {
		if !sess.IsActive || sess.ExpiresAt.Before(now) {
			delete(s.sessions, token)
			purged++
		}
	}
	return purged, nil
}

// Knowledge entry methods

func (s *MemoryStore) UpsertKnowledge(entry *KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == 0 {
		s.nextEntryID++
		entry.ID = s.nextEntryID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	cp.Embedding = append([]float32(nil), entry.Embedding...)
	if entry.Embedding == nil {
		cp.Embedding = nil
	}
	s.knowledge[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) GetKnowledge(id int64) (*KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.knowledge[id]; ok {
		cp := *entry
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListKnowledge(filter KnowledgeFilter) ([]*KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*KnowledgeEntry
	for _, entry := range s.knowledge {
		if filter.Category != "" && entry.Category != filter.Category {
			continue
		}
		if filter.SourceType != "" && entry.SourceType != filter.SourceType {
			continue
		}
		cp := *entry
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

// Conversation methods

func (s *MemoryStore) AppendConversation(conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConvID++
	conv.ID = s.nextConvID
	if conv.Timestamp.IsZero() {
		conv.Timestamp = time.Now().UTC()
	}
	cp := *conv
	s.conversations = append(s.conversations, &cp)
	return nil
}

func (s *MemoryStore) ConversationHistory(sessionID string, userID int64, limit int) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*Conversation
	for _, conv := range s.conversations {
		if conv.SessionID != sessionID {
			continue
		}
		if conv.UserID == nil || *conv.UserID != userID {
			continue
		}
		cp := *conv
		convs = append(convs, &cp)
	}
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].Timestamp.Equal(convs[j].Timestamp) {
			return convs[i].Timestamp.After(convs[j].Timestamp)
		}
		return convs[i].ID > convs[j].ID
	})
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

func (s *MemoryStore) PruneConversations(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*Conversation
	var pruned int64
	for _, conv := range s.conversations {
		if conv.Timestamp.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, conv)
	}
	s.conversations = kept
	return pruned, nil
}

func (s *MemoryStore) Statistics() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		TotalKnowledgeEntries: int64(len(s.knowledge)),
		TotalConversations:    int64(len(s.conversations)),
		CategoryDistribution:  make(map[string]int64),
	}
	for _, entry := range s.knowledge {
		stats.CategoryDistribution[entry.Category]++
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
