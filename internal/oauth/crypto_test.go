package oauth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return c
}

func TestNewCipherKeyLength(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.Error(t, err)

	_, err = NewCipher(bytes.Repeat([]byte{1}, 32))
	assert.NoError(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := testCipher(t)

	plain := []byte(`{"access_token":"ya29.secret"}`)
	enc, err := c.Seal(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)

	got, err := c.Open(enc)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestOpenRejectsTampering(t *testing.T) {
	c := testCipher(t)

	enc, err := c.Seal([]byte("payload"))
	require.NoError(t, err)

	enc[len(enc)-1] ^= 0xff
	_, err = c.Open(enc)
	assert.Error(t, err)

	_, err = c.Open([]byte{1, 2, 3})
	assert.Error(t, err)
}
