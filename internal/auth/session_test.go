package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicproject/unic/internal/store"
)

func newSessionFixture(t *testing.T) (*SessionManager, *store.MemoryStore, *store.User) {
	t.Helper()
	db := store.NewMemoryStore()
	user := &store.User{Username: "alice", Email: "alice@x.com", PasswordHash: "h", Salt: "s", IsActive: true}
	require.NoError(t, db.CreateUser(user))
	return NewSessionManager(db, time.Hour, nil), db, user
}

func TestCreateAndValidate(t *testing.T) {
	mgr, _, user := newSessionFixture(t)

	token, err := mgr.Create(user.ID, SessionMetadata{RemoteAddr: "127.0.0.1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(token), 32, "token must carry at least 128 bits of entropy")

	got, err := mgr.Validate(token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	// Tokens are unique across sessions.
	token2, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestValidateUnknownToken(t *testing.T) {
	mgr, _, _ := newSessionFixture(t)

	got, err := mgr.Validate("no-such-token")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = mgr.Validate("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExpiredSessionFailsValidationEvenIfFlaggedActive(t *testing.T) {
	mgr, db, user := newSessionFixture(t)

	token, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)

	// Jump past the expiry without touching the active flag.
	mgr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Validation deactivated the stale session lazily.
	sess, err := db.GetSession(token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.False(t, sess.IsActive)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	mgr, _, user := newSessionFixture(t)

	token, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)

	found, err := mgr.Invalidate(token)
	require.NoError(t, err)
	assert.True(t, found, "first logout deactivates the session")

	found, err = mgr.Invalidate(token)
	require.NoError(t, err)
	assert.False(t, found, "second logout is a no-op, not an error")

	got, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, got, "an invalidated session never becomes valid again")
}

func TestUserDeactivationInvalidatesSessions(t *testing.T) {
	mgr, db, user := newSessionFixture(t)
	creds := NewCredentialStore(db, 6, nil)

	token, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, creds.Deactivate(user.ID))

	got, err := mgr.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweepKeepsActiveUnexpiredSessions(t *testing.T) {
	mgr, db, user := newSessionFixture(t)

	live, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)
	stale, err := mgr.Create(user.ID, SessionMetadata{})
	require.NoError(t, err)
	_, err = mgr.Invalidate(stale)
	require.NoError(t, err)

	purged, err := mgr.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	sess, err := db.GetSession(live)
	require.NoError(t, err)
	assert.NotNil(t, sess, "sweep must never purge an active, unexpired session")

	sess, err = db.GetSession(stale)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
