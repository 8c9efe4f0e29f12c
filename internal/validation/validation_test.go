package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain", "a@x.io", "a@x.io", nil},
		{"trims", "  a@x.io\n", "a@x.io", nil},
		{"keeps case", "Alice@X.io", "Alice@X.io", nil},
		{"empty", "   ", "", ErrEmailRequired},
		{"no at", "alice", "", ErrEmailInvalid},
		{"display name", "Alice <a@x.io>", "", ErrEmailInvalid},
		{"too long", strings.Repeat("a", 315) + "@x.io1", "", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("  Spring 2026 ")
	require.NoError(t, err)
	require.Equal(t, "Spring 2026", got)

	_, err = NormalizeName("")
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = NormalizeName(strings.Repeat("n", 101))
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestValidatePassword(t *testing.T) {
	require.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	require.ErrorIs(t, ValidatePassword(strings.Repeat("p", 73)), ErrPasswordTooLong)
	require.NoError(t, ValidatePassword("correct horse"))
}

func TestValidateHTTPURL(t *testing.T) {
	require.NoError(t, ValidateHTTPURL("https://example.com/functions/v1/resend-email"))
	require.ErrorIs(t, ValidateHTTPURL("ftp://example.com"), ErrURLInvalid)
	require.ErrorIs(t, ValidateHTTPURL("/relative"), ErrURLInvalid)
}
