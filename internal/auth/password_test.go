package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordDerivesFromSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	require.NoError(t, err)
	salt2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt1, salt2, "salts must be random per user")

	hash1, err := HashPassword("secret123", salt1)
	require.NoError(t, err)
	hash2, err := HashPassword("secret123", salt2)
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same password under different salts must differ")
	assert.NotContains(t, hash1, "secret123")

	// Same salt, same password: deterministic.
	again, err := HashPassword("secret123", salt1)
	require.NoError(t, err)
	assert.Equal(t, hash1, again)
}

func TestVerifyPassword(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	hash, err := HashPassword("correct horse", salt)
	require.NoError(t, err)

	assert.True(t, VerifyPassword("correct horse", salt, hash))
	assert.False(t, VerifyPassword("wrong horse", salt, hash))
	assert.False(t, VerifyPassword("correct horse", salt, hash+"x"))
	assert.False(t, VerifyPassword("correct horse", "not-base64!!", hash))
}
