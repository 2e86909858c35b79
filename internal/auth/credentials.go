package auth

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/store"
)

// CredentialStore persists user accounts and verifies passwords.
type CredentialStore struct {
	store             store.Store
	logger            *zap.Logger
	minPasswordLength int
}

func NewCredentialStore(s store.Store, minPasswordLength int, logger *zap.Logger) *CredentialStore {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		store:             s,
		logger:            logger,
		minPasswordLength: minPasswordLength,
	}
}

// CreateUser registers a new account. Returns store.ErrDuplicateUser if the
// username or email is taken and ErrWeakPassword for short passwords.
func (c *CredentialStore) CreateUser(username, email, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrMissingField)
	}
	if len(password) < c.minPasswordLength {
		return nil, ErrWeakPassword
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, salt)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		IsActive:     true,
	}
	if err := c.store.CreateUser(user); err != nil {
		return nil, err
	}

	c.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Authenticate verifies a username/password pair. Returns (nil, nil) for an
// unknown username, an inactive account or a hash mismatch; the caller must
// not surface which case occurred. On success the last-login timestamp is
// updated.
func (c *CredentialStore) Authenticate(username, password string) (*store.User, error) {
	user, err := c.store.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}
	if !VerifyPassword(password, user.Salt, user.PasswordHash) {
		return nil, nil
	}

	now := time.Now().UTC()
	if err := c.store.UpdateLastLogin(user.ID, now); err != nil {
		// Not fatal for the login itself.
		c.logger.Warn("failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now
	return user, nil
}

// Deactivate marks the account inactive and invalidates every session owned
// by it. The user row is never physically deleted.
func (c *CredentialStore) Deactivate(userID int64) error {
	if err := c.store.DeactivateUser(userID); err != nil {
		return err
	}
	if err := c.store.DeactivateUserSessions(userID); err != nil {
		return err
	}
	c.logger.Info("user deactivated", zap.Int64("user_id", userID))
	return nil
}

// EnsureAdmin creates an admin account if the username is not yet taken.
// Used for first-run bootstrap; an existing account is left untouched.
func (c *CredentialStore) EnsureAdmin(username, email, password string) error {
	existing, err := c.store.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if len(password) < c.minPasswordLength {
		return ErrWeakPassword
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := HashPassword(password, salt)
	if err != nil {
		return err
	}
	admin := &store.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := c.store.CreateUser(admin); err != nil {
		return err
	}
	c.logger.Info("admin account created", zap.String("username", username))
	return nil
}
