package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/store"
)

const tokenBytes = 32 // 256 bits of entropy per token

// SessionMetadata carries optional client details recorded at login.
type SessionMetadata struct {
	RemoteAddr string
	UserAgent  string
}

// SessionManager issues, validates and revokes opaque session tokens.
//
// Per-session state machine: Active (on issuance) → Expired (time-triggered,
// detected lazily on validation) or Invalidated (logout / user deactivation).
// Both terminal states are equivalent for validation: the session never
// becomes valid again.
type SessionManager struct {
	store  store.Store
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time // injectable for expiry tests
}

func NewSessionManager(s store.Store, ttl time.Duration, logger *zap.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		store:  s,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create issues a new session token for the user.
func (m *SessionManager) Create(userID int64, meta SessionMetadata) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	session := &store.Session{
		Token:      token,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		IsActive:   true,
		RemoteAddr: meta.RemoteAddr,
		UserAgent:  meta.UserAgent,
	}
	if err := m.store.CreateSession(session); err != nil {
		return "", err
	}
	return token, nil
}

// Validate returns the session's user when the token is active, unexpired and
// its owner is still active. Returns (nil, nil) otherwise; an unknown or
// stale token is not an error. An expired session still flagged active is
// deactivated lazily here.
func (m *SessionManager) Validate(token string) (*store.User, error) {
	if token == "" {
		return nil, nil
	}
	session, err := m.store.GetSession(token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil || !session.IsActive {
		return nil, nil
	}
	if !m.now().UTC().Before(session.ExpiresAt) {
		if _, err := m.store.DeactivateSession(token); err != nil {
			m.logger.Warn("failed to deactivate expired session", zap.Error(err))
		}
		return nil, nil
	}

	user, err := m.store.GetUserByID(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// Invalidate deactivates the session. Idempotent: reports whether a
// previously active session was found.
func (m *SessionManager) Invalidate(token string) (bool, error) {
	deactivated, err := m.store.DeactivateSession(token)
	if err != nil {
		return false, err
	}
	if deactivated {
		m.logger.Debug("session invalidated")
	}
	return deactivated, nil
}

// Sweep purges sessions that are inactive or already expired. Active,
// unexpired sessions are never removed.
func (m *SessionManager) Sweep() (int64, error) {
	return m.store.PurgeSessions(m.now().UTC())
}

// RunSweeper purges stale sessions on the given interval until stop is closed.
func (m *SessionManager) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			purged, err := m.Sweep()
			if err != nil {
				m.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				m.logger.Info("purged stale sessions", zap.Int64("count", purged))
			}
		}
	}
}

// generateToken returns a URL-safe random token. 32 bytes comfortably clears
// the 128-bit entropy floor, making collisions effectively impossible.
func generateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
