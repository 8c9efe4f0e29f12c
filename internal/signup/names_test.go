package signup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDisplayName(t *testing.T) {
	tests := []struct {
		input     string
		wantFirst string
		wantLast  string
	}{
		{"Ann Lee", "Ann", "Lee"},
		{"Bo", "Bo", "Bo"},
		{"Mary Jane Watson", "Mary", "Jane Watson"},
		{"  Ann   Lee  ", "Ann", "Lee"},
		{"Ann ", "Ann", "Ann"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			first, last := SplitDisplayName(tt.input)
			require.Equal(t, tt.wantFirst, first)
			require.Equal(t, tt.wantLast, last)
		})
	}
}
