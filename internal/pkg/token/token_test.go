package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManageToken(t *testing.T) {
	tok, err := NewManageToken()
	require.NoError(t, err)

	// 32 random bytes encode to 43 unpadded base64url characters.
	assert.Len(t, tok, 43)
	assert.False(t, strings.ContainsAny(tok, "+/="), "token must be URL-safe without padding")
}

func TestNewManageToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewManageToken()
		require.NoError(t, err)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
