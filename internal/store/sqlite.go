package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        salt TEXT NOT NULL,
        is_admin BOOLEAN DEFAULT FALSE,
        is_active BOOLEAN DEFAULT TRUE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        last_login_at DATETIME
    );

    CREATE TABLE IF NOT EXISTS sessions (
        token TEXT PRIMARY KEY,
        user_id INTEGER NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        expires_at DATETIME NOT NULL,
        is_active BOOLEAN DEFAULT TRUE,
        remote_addr TEXT,
        user_agent TEXT,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS knowledge_entries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT,
        content TEXT NOT NULL,
        category TEXT NOT NULL,
        source TEXT,
        source_type TEXT,
        author TEXT,
        embedding_json TEXT, -- JSON string of []float32
        is_processed BOOLEAN DEFAULT FALSE,
        confidence_score REAL DEFAULT 1.0,
        date_added DATETIME DEFAULT CURRENT_TIMESTAMP,
        date_published DATETIME,
        tags_json TEXT
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        user_id INTEGER,
        user_message TEXT NOT NULL,
        bot_response TEXT NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        category TEXT,
        confidence_score REAL,
        sources_json TEXT
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id);
    CREATE INDEX IF NOT EXISTS idx_knowledge_category ON knowledge_entries (category);
    CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations (session_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		"INSERT INTO users (username, email, password_hash, salt, is_admin, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.Salt, user.IsAdmin, user.IsActive, user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, username, email, password_hash, salt, is_admin, is_active, created_at, last_login_at FROM users WHERE username = ?",
		username,
	))
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, username, email, password_hash, salt, is_admin, is_active, created_at, last_login_at FROM users WHERE id = ?",
		id,
	))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Salt,
		&user.IsAdmin, &user.IsActive, &user.CreatedAt, &lastLogin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return &user, nil
}

func (s *SQLiteStore) UpdateLastLogin(userID int64, at time.Time) error {
	_, err := s.db.Exec("UPDATE users SET last_login_at = ? WHERE id = ?", at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateUser(userID int64) error {
	_, err := s.db.Exec("UPDATE users SET is_active = FALSE WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}

// Session methods

func (s *SQLiteStore) CreateSession(session *Session) error {
	_, err := s.db.Exec(
		"INSERT INTO sessions (token, user_id, created_at, expires_at, is_active, remote_addr, user_agent) VALUES (?, ?, ?, ?, ?, ?, ?)",
		session.Token, session.UserID, session.CreatedAt, session.ExpiresAt, session.IsActive, session.RemoteAddr, session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(token string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(
		"SELECT token, user_id, created_at, expires_at, is_active, remote_addr, user_agent FROM sessions WHERE token = ?",
		token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.IsActive, &sess.RemoteAddr, &sess.UserAgent)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) DeactivateSession(token string) (bool, error) {
	res, err := s.db.Exec("UPDATE sessions SET is_active = FALSE WHERE token = ? AND is_active = TRUE", token)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) DeactivateUserSessions(userID int64) error {
	_, err := s.db.Exec("UPDATE sessions SET is_active = FALSE WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeSessions(now time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE is_active = FALSE OR expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// Knowledge entry methods

func (s *SQLiteStore) UpsertKnowledge(entry *KnowledgeEntry) error {
	embeddingJSON, err := marshalNullable(entry.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	tagsJSON, err := marshalNullable(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if entry.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO knowledge_entries
             (title, content, category, source, source_type, author, embedding_json, is_processed, confidence_score, date_added, date_published, tags_json)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.Title, entry.Content, entry.Category, entry.Source, entry.SourceType, entry.Author,
			embeddingJSON, entry.Processed, entry.Confidence, entry.CreatedAt, entry.PublishedAt, tagsJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert knowledge entry: %w", err)
		}
		entry.ID, _ = res.LastInsertId()
		return nil
	}

	_, err = s.db.Exec(
		`UPDATE knowledge_entries SET
         title = ?, content = ?, category = ?, source = ?, source_type = ?, author = ?,
         embedding_json = ?, is_processed = ?, confidence_score = ?, date_published = ?, tags_json = ?
         WHERE id = ?`,
		entry.Title, entry.Content, entry.Category, entry.Source, entry.SourceType, entry.Author,
		embeddingJSON, entry.Processed, entry.Confidence, entry.PublishedAt, tagsJSON, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetKnowledge(id int64) (*KnowledgeEntry, error) {
	rows, err := s.db.Query(knowledgeSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanKnowledge(rows)
}

const knowledgeSelect = `SELECT id, title, content, category, source, source_type, author,
    embedding_json, is_processed, confidence_score, date_added, date_published, tags_json
    FROM knowledge_entries`

func (s *SQLiteStore) ListKnowledge(filter KnowledgeFilter) ([]*KnowledgeEntry, error) {
	query := knowledgeSelect
	var conds []string
	var args []any
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.SourceType != "" {
		conds = append(conds, "source_type = ?")
		args = append(args, filter.SourceType)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []*KnowledgeEntry
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanKnowledge(rows *sql.Rows) (*KnowledgeEntry, error) {
	var entry KnowledgeEntry
	var embeddingJSON, tagsJSON sql.NullString
	var published sql.NullTime
	err := rows.Scan(&entry.ID, &entry.Title, &entry.Content, &entry.Category, &entry.Source,
		&entry.SourceType, &entry.Author, &embeddingJSON, &entry.Processed, &entry.Confidence,
		&entry.CreatedAt, &published, &tagsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
	}
	if published.Valid {
		entry.PublishedAt = &published.Time
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &entry.Embedding); err != nil {
			// A single unparsable embedding must not break the whole listing;
			// the entry simply becomes ineligible for ranking.
			entry.Embedding = nil
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &entry.Tags); err != nil {
			entry.Tags = nil
		}
	}
	return &entry, nil
}

// Conversation methods

func (s *SQLiteStore) AppendConversation(conv *Conversation) error {
	sourcesJSON, err := marshalNullable(conv.SourceIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source ids: %w", err)
	}
	if conv.Timestamp.IsZero() {
		conv.Timestamp = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO conversations (session_id, user_id, user_message, bot_response, timestamp, category, confidence_score, sources_json)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.SessionID, conv.UserID, conv.Message, conv.Response, conv.Timestamp, conv.Category, conv.Confidence, sourcesJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert conversation: %v", ErrPersistence, err)
	}
	conv.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ConversationHistory(sessionID string, userID int64, limit int) ([]*Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, user_message, bot_response, timestamp, category, confidence_score, sources_json
         FROM conversations WHERE session_id = ? AND user_id = ?
         ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sessionID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var uid sql.NullInt64
		var sourcesJSON sql.NullString
		if err := rows.Scan(&conv.ID, &conv.SessionID, &uid, &conv.Message, &conv.Response,
			&conv.Timestamp, &conv.Category, &conv.Confidence, &sourcesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if uid.Valid {
			conv.UserID = &uid.Int64
		}
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &conv.SourceIDs); err != nil {
				conv.SourceIDs = nil
			}
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) PruneConversations(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM conversations WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune conversations: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (s *SQLiteStore) Statistics() (*Stats, error) {
	stats := &Stats{CategoryDistribution: make(map[string]int64)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM knowledge_entries").Scan(&stats.TotalKnowledgeEntries); err != nil {
		return nil, fmt.Errorf("failed to count knowledge entries: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&stats.TotalConversations); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.db.Query("SELECT category, COUNT(*) FROM knowledge_entries GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.CategoryDistribution[category] = count
	}
	return stats, rows.Err()
}

// marshalNullable returns nil (SQL NULL) for empty slices so that a missing
// embedding round-trips as nil rather than "[]".
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case []float32:
		if val == nil {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []int64:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
