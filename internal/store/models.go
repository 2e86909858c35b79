package store

import "time"

// Category labels assigned to both knowledge entries and queries.
const (
	CategoryArts         = "arts"
	CategoryCreativity   = "creativity"
	CategoryDefence      = "defence"
	CategoryLove         = "love"
	CategoryPhilosophy   = "philosophy"
	CategoryScientific   = "scientific"
	CategorySpirituality = "spirituality"

	// DefaultCategory is used when no category scores above zero.
	DefaultCategory = CategoryPhilosophy
)

// Categories lists every valid category label.
var Categories = []string{
	CategoryArts,
	CategoryCreativity,
	CategoryDefence,
	CategoryLove,
	CategoryPhilosophy,
	CategoryScientific,
	CategorySpirituality,
}

// ValidCategory reports whether c is one of the fixed category labels.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Do not expose this in JSON responses
	Salt         string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Session is an issued authentication session. A session is valid only while
// IsActive is true and the expiry time has not passed.
type Session struct {
	Token      string    `json:"-"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `json:"is_active"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// KnowledgeEntry is a single indexed document. An entry is eligible for
// ranking only when Processed is true and Embedding is non-nil.
type KnowledgeEntry struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Category    string     `json:"category"`
	Source      string     `json:"source"`
	SourceType  string     `json:"source_type"` // "arxiv", "quotes", "manual", ...
	Author      string     `json:"author"`
	Embedding   []float32  `json:"-"`
	Processed   bool       `json:"is_processed"`
	Confidence  float64    `json:"confidence_score"` // prior weight, independent of any query
	CreatedAt   time.Time  `json:"date_added"`
	PublishedAt *time.Time `json:"date_published,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Conversation is one (message, response) exchange. Rows are append-only and
// never mutated after creation.
type Conversation struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	UserID     *int64    `json:"user_id,omitempty"`
	Message    string    `json:"user_message"`
	Response   string    `json:"bot_response"`
	Timestamp  time.Time `json:"timestamp"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence_score"`
	SourceIDs  []int64   `json:"sources_used,omitempty"`
}

// KnowledgeFilter narrows ListKnowledge results. Zero values mean "no filter".
type KnowledgeFilter struct {
	Category   string
	SourceType string
	Limit      int
}

// Stats summarizes store contents.
type Stats struct {
	TotalKnowledgeEntries int64            `json:"total_knowledge_entries"`
	TotalConversations    int64            `json:"total_conversations"`
	CategoryDistribution  map[string]int64 `json:"category_distribution"`
}
