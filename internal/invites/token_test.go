package invites

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, hash, err := GenerateToken()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, TokenPrefix))
	require.True(t, ValidTokenFormat(token))
	require.Len(t, hash, 32)
	require.Equal(t, HashToken(token), hash)
}

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, _, err := GenerateToken()
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestValidTokenFormat(t *testing.T) {
	token, _, err := GenerateToken()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"generated", token, true},
		{"empty", "", false},
		{"prefix only", TokenPrefix, false},
		{"wrong prefix", "fgi_" + strings.TrimPrefix(token, TokenPrefix), false},
		{"truncated", token[:len(token)-4], false},
		{"bad alphabet", TokenPrefix + strings.Repeat("*", 43), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ValidTokenFormat(tt.token))
		})
	}
}
