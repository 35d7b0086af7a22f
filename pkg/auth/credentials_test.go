package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the KDF fast in tests.
func testCredentialManager() *CredentialManager {
	return NewCredentialManagerWithParams(1024, 8, 1, 16)
}

func TestDeriveIsDeterministic(t *testing.T) {
	m := testCredentialManager()

	creds, err := m.Issue("secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.Salt)
	assert.NotEmpty(t, creds.TokenHash)

	again, err := m.Derive("secret1", creds.Salt)
	require.NoError(t, err)
	assert.Equal(t, creds.TokenHash, again)
}

func TestIssueUsesFreshSalts(t *testing.T) {
	m := testCredentialManager()

	a, err := m.Issue("secret1")
	require.NoError(t, err)
	b, err := m.Issue("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.TokenHash, b.TokenHash)
}

func TestVerify(t *testing.T) {
	m := testCredentialManager()

	creds, err := m.Issue("secret1")
	require.NoError(t, err)

	assert.NoError(t, m.Verify("secret1", creds.Salt, creds.TokenHash))
	assert.ErrorIs(t, m.Verify("wrong", creds.Salt, creds.TokenHash), ErrCredentialMismatch)
}

func TestVerifyBadSalt(t *testing.T) {
	m := testCredentialManager()
	err := m.Verify("secret1", "not-hex", "deadbeef")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialMismatch)
}
