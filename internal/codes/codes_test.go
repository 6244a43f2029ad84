package codes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	for i := 0; i < 500; i++ {
		code := Generate()
		require.Len(t, code, Length)
		for _, r := range code {
			require.True(t, strings.ContainsRune(Charset, r), "unexpected character %q in %q", r, code)
		}
	}
}

func TestCharsetSize(t *testing.T) {
	assert.Equal(t, 41, len(Charset))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "ab12xy!!", "AB12XY!!"},
		{"strip invalid", "k3q9 z!7m", "K3Q9Z!7M"},
		{"keep specials", "a@&/-b12", "A@&/-B12"},
		{"all invalid", "  ., #", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("K3Q9Z!7M"))
	assert.False(t, Valid("K3Q9Z!7"))
	assert.False(t, Valid("K3Q9Z!7MM"))
	assert.False(t, Valid(""))
}

func TestHash(t *testing.T) {
	h1 := Hash("K3Q9Z!7M")
	h2 := Hash("K3Q9Z!7M")
	h3 := Hash("7X2CADE1")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	// hex SHA-512
	assert.Len(t, h1, 128)
}
