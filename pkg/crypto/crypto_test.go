package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("a-secret")
	require.NoError(t, err)
	require.True(t, c.Enabled())

	sealed, err := c.Encrypt("oauth-token")
	require.NoError(t, err)
	assert.NotEqual(t, "oauth-token", sealed)

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", plain)
}

func TestCipherRejectsForeignKey(t *testing.T) {
	a, _ := NewCipher("key-a")
	b, _ := NewCipher("key-b")

	sealed, err := a.Encrypt("oauth-token")
	require.NoError(t, err)
	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestCipherWithoutSecretIsPassthrough(t *testing.T) {
	c, err := NewCipher("")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	out, err := c.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}
