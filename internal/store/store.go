package store

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateUser is returned when a username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already exists")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps storage-unavailable failures.
	ErrPersistence = errors.New("storage unavailable")
)

// Store is the persistence boundary for users, sessions, knowledge entries
// and conversations. Implementations must be safe for concurrent use.
type Store interface {
	// Users
	CreateUser(user *User) error
	GetUserByUsername(username string) (*User, error)
	GetUserByID(id int64) (*User, error)
	UpdateLastLogin(userID int64, at time.Time) error
	DeactivateUser(userID int64) error

	// Sessions
	CreateSession(session *Session) error
	GetSession(token string) (*Session, error)
	DeactivateSession(token string) (bool, error)
	DeactivateUserSessions(userID int64) error
	// PurgeSessions deletes sessions that are inactive or expired as of now.
	// Active, unexpired sessions are never purged.
	PurgeSessions(now time.Time) (int64, error)

	// Knowledge entries
	UpsertKnowledge(entry *KnowledgeEntry) error
	GetKnowledge(id int64) (*KnowledgeEntry, error)
	ListKnowledge(filter KnowledgeFilter) ([]*KnowledgeEntry, error)

	// Conversations
	AppendConversation(conv *Conversation) error
	ConversationHistory(sessionID string, userID int64, limit int) ([]*Conversation, error)
	PruneConversations(before time.Time) (int64, error)

	Statistics() (*Stats, error)
	Close() error
}
