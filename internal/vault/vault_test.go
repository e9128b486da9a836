package vault

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T) *Memory {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	v, err := NewMemory(key)
	require.NoError(t, err)
	return v
}

func TestStoreAndReveal(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", CredentialDef{
		Type:  "gmailOAuth2",
		Name:  "Outreach Gmail",
		Value: "super-secret-refresh-token",
	}, "system")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cred, err := v.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", cred.WorkspaceID)
	assert.Equal(t, "gmailOAuth2", cred.Type)
	// The sealed value must not contain the plaintext.
	assert.NotContains(t, cred.SealedValue, "super-secret-refresh-token")

	plaintext, err := v.Reveal(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-refresh-token", plaintext)
}

func TestStoreSealsIndependently(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	def := CredentialDef{Type: "apiKey", Name: "same", Value: "same-value"}
	id1, err := v.Store(ctx, "ws-1", def, "system")
	require.NoError(t, err)
	id2, err := v.Store(ctx, "ws-1", def, "system")
	require.NoError(t, err)

	c1, err := v.Get(ctx, id1)
	require.NoError(t, err)
	c2, err := v.Get(ctx, id2)
	require.NoError(t, err)

	// Fresh nonce per seal: identical plaintexts yield distinct ciphertexts.
	assert.NotEqual(t, c1.SealedValue, c2.SealedValue)
}

func TestDelete(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	id, err := v.Store(ctx, "ws-1", CredentialDef{Type: "apiKey", Name: "k", Value: "v"}, "system")
	require.NoError(t, err)

	require.NoError(t, v.Delete(ctx, id))
	assert.Equal(t, 0, v.Count())

	err = v.Delete(ctx, id)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = v.Get(ctx, id)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestNewMemoryBadKey(t *testing.T) {
	_, err := NewMemory([]byte("short"))
	assert.Error(t, err)
}
